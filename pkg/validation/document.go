package validation

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Document checks the keys every custom resource document needs.
func Document(doc map[string]interface{}) error {
	p := &problems{resource: "document"}
	for _, path := range [][]string{{"apiVersion"}, {"kind"}, {"metadata", "name"}} {
		v, found, err := unstructured.NestedFieldNoCopy(doc, path...)
		if err != nil || !found || v == nil || v == "" {
			p.addf("missing required key %q", joinPath(path))
		}
	}
	return p.err()
}

// Name checks that name is a DNS-1123 label of at most maxLength characters.
func Name(kind, name string, maxLength int) []string {
	var out []string
	if name == "" {
		return append(out, kind+" name cannot be empty")
	}
	if len(name) > maxLength {
		out = append(out, "name '"+name+"' exceeds "+itoa(maxLength)+" character length limit")
	}
	for _, msg := range validation.IsDNS1123Label(name) {
		out = append(out, "name '"+name+"' does not follow DNS requirements: "+msg)
	}
	return out
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}
