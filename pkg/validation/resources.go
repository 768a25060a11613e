package validation

import (
	"fmt"
	"strconv"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
)

// Floors are the smallest requests and limits an instance accepts.
type Floors struct {
	Memory resource.Quantity
	CPU    resource.Quantity
}

var (
	PostgreSQLFloors         = Floors{Memory: resource.MustParse("256Mi"), CPU: resource.MustParse("1")}
	SQLManagedInstanceFloors = Floors{Memory: resource.MustParse("2Gi"), CPU: resource.MustParse("1")}
)

// Role checks one role's resources: quantities parse, respect floors, and no
// request exceeds its limit.
func Role(role string, spec *v1beta1.RoleSpec, floors Floors) []string {
	if spec == nil || spec.Resources == nil {
		return nil
	}
	var out []string
	req := parseList(role, "request", spec.Resources.Requests, floors, &out)
	lim := parseList(role, "limit", spec.Resources.Limits, floors, &out)

	if req.memory != nil && lim.memory != nil && req.memory.Cmp(*lim.memory) > 0 {
		out = append(out, fmt.Sprintf("%s: memory request of %s cannot exceed memory limit of %s",
			role, req.memory.String(), lim.memory.String()))
	}
	if req.cpu != nil && lim.cpu != nil && req.cpu.Cmp(*lim.cpu) > 0 {
		out = append(out, fmt.Sprintf("%s: cores request of %s cannot exceed cores limit of %s",
			role, req.cpu.String(), lim.cpu.String()))
	}
	return out
}

type parsed struct {
	memory *resource.Quantity
	cpu    *resource.Quantity
}

func parseList(role, what string, l *v1beta1.ResourceList, floors Floors, out *[]string) parsed {
	var p parsed
	if l == nil {
		return p
	}
	if l.Memory != "" {
		if q, err := resource.ParseQuantity(l.Memory); err != nil {
			*out = append(*out, fmt.Sprintf("%s: invalid memory %s %q", role, what, l.Memory))
		} else if q.Cmp(floors.Memory) < 0 {
			*out = append(*out, fmt.Sprintf("%s: memory %s must be at least '%s'", role, what, floors.Memory.String()))
		} else {
			p.memory = &q
		}
	}
	if l.CPU != "" {
		if q, err := resource.ParseQuantity(l.CPU); err != nil {
			*out = append(*out, fmt.Sprintf("%s: invalid cores %s %q", role, what, l.CPU))
		} else if q.Cmp(floors.CPU) < 0 {
			*out = append(*out, fmt.Sprintf("%s: cores %s must be at least '%s'", role, what, floors.CPU.String()))
		} else {
			p.cpu = &q
		}
	}
	return p
}

func itoa(n int) string { return strconv.Itoa(n) }
