package patch

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// Marshal renders doc in canonical form: sorted keys, two-space indent, trailing
// newline.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "encode document")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a document keeping integers as int64.
func Unmarshal(raw []byte) (Document, error) {
	doc := Document{}
	if err := utiljson.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	return doc, nil
}

// ReadFile loads a document from a JSON file.
func ReadFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	doc, err := Unmarshal(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return doc, nil
}

// WriteFile writes doc to path in canonical form.
func WriteFile(path string, doc Document) error {
	raw, err := Marshal(doc)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, raw, 0o644), "write %s", path)
}

// EditFile loads the document at path, applies edit and writes the result back.
// Nothing is written if edit fails.
func EditFile(path string, edit func(Document) (Document, error)) (Document, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := edit(doc)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, out); err != nil {
		return nil, err
	}
	return out, nil
}
