// Package applyargs projects command line flags onto typed custom resources.
package applyargs

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// Triple is one parsed (role, key, value) entry. Key is empty for role-scoped
// quantities such as coordinator=2Gi; Role is empty for plain key=value lists.
type Triple struct {
	Role  string
	Key   string
	Value string
}

// token is one comma separated item of a flag value.
type token struct {
	key      string
	value    string
	hasValue bool
}

// tokenize splits s on commas into key[=value] items.
//
// A backslash before =, comma, backslash or a quote makes that character literal,
// so \= and \, never split. Any other backslash is kept as written, which leaves
// values such as C:\data or a\nb intact. Single or double quotes group text
// (commas and equals signs inside are literal) and are removed. Whitespace around
// keys and values is trimmed.
func tokenize(s string) ([]token, error) {
	var (
		out   []token
		cur   token
		buf   strings.Builder
		quote rune
	)
	flush := func() {
		text := strings.TrimSpace(buf.String())
		if cur.hasValue {
			cur.value = text
		} else {
			cur.key = text
		}
		if cur.key != "" || cur.hasValue {
			out = append(out, cur)
		}
		cur = token{}
		buf.Reset()
	}
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes) && isEscapable(runes[i+1]):
			i++
			buf.WriteRune(runes[i])
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				buf.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '=' && !cur.hasValue:
			cur.key = strings.TrimSpace(buf.String())
			cur.hasValue = true
			buf.Reset()
		case r == ',':
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, invalid(errors.Errorf("unterminated quote in %q", s))
	}
	flush()
	return out, nil
}

func isEscapable(r rune) bool {
	switch r {
	case '=', ',', '\\', '\'', '"':
		return true
	}
	return false
}

// hasAssignment reports whether s contains an unescaped, unquoted '='.
func hasAssignment(s string) bool {
	toks, err := tokenize(s)
	if err != nil {
		return false
	}
	for _, t := range toks {
		if t.hasValue {
			return true
		}
	}
	return false
}

// NormalizeRole maps role names and their shorthands to the canonical role.
func NormalizeRole(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "c", v1beta1.RoleCoordinator:
		return v1beta1.RoleCoordinator, nil
	case "w", v1beta1.RoleWorker:
		return v1beta1.RoleWorker, nil
	case "m", v1beta1.RoleMonitor:
		return v1beta1.RoleMonitor, nil
	case v1beta1.RoleDefault:
		return v1beta1.RoleDefault, nil
	}
	return "", invalid(errors.Errorf("invalid role '%s'; valid roles are coordinator, worker, monitor, default, c, w, m", role))
}

// ParseRoleValues parses flags such as --memory-limit. A value without '=' applies
// to the default bucket; otherwise each item is role=value.
func ParseRoleValues(s string) ([]Triple, error) {
	if !hasAssignment(s) {
		toks, err := tokenize(s)
		if err != nil {
			return nil, err
		}
		value := ""
		if len(toks) > 0 {
			value = toks[0].key
		}
		if len(toks) > 1 {
			return nil, invalid(errors.Errorf("%q: only one value may be given without a role", s))
		}
		return []Triple{{Role: v1beta1.RoleDefault, Value: value}}, nil
	}
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	out := make([]Triple, 0, len(toks))
	for _, t := range toks {
		if !t.hasValue {
			return nil, invalid(errors.Errorf("%q: expected role=value", t.key))
		}
		role, err := NormalizeRole(t.key)
		if err != nil {
			return nil, err
		}
		out = append(out, Triple{Role: role, Value: t.value})
	}
	return out, nil
}

// ParseSettings parses key=value,key2=value2 for role. An item without '=' or with
// an empty value yields an empty Value, which deletes the key when applied.
func ParseSettings(role, s string) ([]Triple, error) {
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	out := make([]Triple, 0, len(toks))
	for _, t := range toks {
		if t.key == "" {
			return nil, invalid(errors.Errorf("%q: setting name is empty", s))
		}
		out = append(out, Triple{Role: role, Key: t.key, Value: t.value})
	}
	return out, nil
}

// ParseLabels parses key=value,key2=value2 into a map.
func ParseLabels(s string) (map[string]string, error) {
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(toks))
	for _, t := range toks {
		if !t.hasValue || t.key == "" {
			return nil, invalid(errors.Errorf("%q: expected key=value", t.key))
		}
		out[t.key] = t.value
	}
	return out, nil
}

// ParseList splits a comma separated list, dropping quotes and blanks.
func ParseList(s string) ([]string, error) {
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.hasValue {
			return nil, invalid(errors.Errorf("unexpected '=' in list item %q", t.key))
		}
		out = append(out, t.key)
	}
	return out, nil
}

func invalid(err error) error {
	return retry.Mark(retry.KindValidation, err)
}
