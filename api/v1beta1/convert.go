package v1beta1

import (
	"encoding/json"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// toMap renders a typed resource as a document. Unset optional fields are omitted.
func toMap(obj interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(err, "encode resource")
	}
	out := map[string]interface{}{}
	if err := utiljson.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode resource")
	}
	return out, nil
}

// fromMap hydrates a typed resource from a document. Fields the model does not
// know are dropped.
func fromMap(m map[string]interface{}, into interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}
	return errors.Wrap(json.Unmarshal(raw, into), "decode document")
}

func toUnstructured(obj interface{}) (*unstructured.Unstructured, error) {
	m, err := toMap(obj)
	if err != nil {
		return nil, err
	}
	return &unstructured.Unstructured{Object: m}, nil
}
