// Package validation checks custom resource documents before they are submitted.
package validation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// Error aggregates every problem found in one document.
type Error struct {
	Resource string
	Problems []string
}

func (e *Error) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s: %s", e.Resource, e.Problems[0])
	}
	return fmt.Sprintf("%s is invalid:\n  - %s", e.Resource, strings.Join(e.Problems, "\n  - "))
}

// IsValidation reports whether err carries a validation Error.
func IsValidation(err error) bool {
	var v *Error
	return errors.As(err, &v)
}

// problems collects messages and turns them into an Error marked KindValidation.
type problems struct {
	resource string
	list     []string
}

func (p *problems) addf(format string, args ...interface{}) {
	p.list = append(p.list, fmt.Sprintf(format, args...))
}

func (p *problems) merge(other []string) {
	p.list = append(p.list, other...)
}

// include folds the problems of a nested check into p.
func (p *problems) include(err error) {
	if err == nil {
		return
	}
	var v *Error
	if errors.As(err, &v) {
		p.merge(v.Problems)
		return
	}
	p.list = append(p.list, err.Error())
}

func (p *problems) err() error {
	if len(p.list) == 0 {
		return nil
	}
	return retry.Mark(retry.KindValidation, &Error{Resource: p.resource, Problems: p.list})
}
