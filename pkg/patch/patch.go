// Package patch edits custom resource documents with dot paths, JSONPath
// conditionals and patch files.
package patch

import (
	"encoding/json"
	"os"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	utiljson "k8s.io/apimachinery/pkg/util/json"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// Op is a patch operation name.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

var (
	// ErrConditionalPath rejects a $-prefixed path outside replace.
	ErrConditionalPath = errors.New("conditional paths are only supported by replace")
	// ErrNoMatch is returned when a conditional path selects nothing.
	ErrNoMatch = errors.New("path matched no elements")
	// ErrUnsupportedOp rejects anything other than add, replace and remove.
	ErrUnsupportedOp = errors.New("unsupported patch operation")
	// ErrMissingPatch is returned for a patch file without a top-level "patch" key.
	ErrMissingPatch = errors.New(`patch file must contain a top-level "patch" array`)
)

// Document is a custom resource body.
type Document = map[string]interface{}

// Operation is one entry of a patch file.
type Operation struct {
	Op    Op          `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// File is the on-disk patch file shape.
type File struct {
	Patch []Operation `json:"patch"`
}

// Apply runs ops in order against a copy of doc. If any operation fails the original
// document is returned untouched together with the error.
func Apply(doc Document, ops ...Operation) (Document, error) {
	for i, op := range ops {
		if err := check(op); err != nil {
			return doc, invalid(errors.Wrapf(err, "operation %d (%s %s)", i, op.Op, op.Path))
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return doc, errors.Wrap(err, "encode document")
	}
	for i, op := range ops {
		raw, err = applyOne(raw, op)
		if err != nil {
			return doc, invalid(errors.Wrapf(err, "operation %d (%s %s)", i, op.Op, op.Path))
		}
	}

	out := Document{}
	if err := utiljson.Unmarshal(raw, &out); err != nil {
		return doc, errors.Wrap(err, "decode patched document")
	}
	return out, nil
}

// Add sets every key of values, creating intermediate objects as needed.
func Add(doc Document, values *orderedmap.OrderedMap[string, interface{}]) (Document, error) {
	return Apply(doc, fromValues(OpAdd, values)...)
}

// Replace overwrites every key of values. Keys may be $-prefixed conditionals.
func Replace(doc Document, values *orderedmap.OrderedMap[string, interface{}]) (Document, error) {
	return Apply(doc, fromValues(OpReplace, values)...)
}

// Remove deletes every path.
func Remove(doc Document, paths []string) (Document, error) {
	ops := make([]Operation, 0, len(paths))
	for _, p := range paths {
		ops = append(ops, Operation{Op: OpRemove, Path: p})
	}
	return Apply(doc, ops...)
}

// LoadFile reads a patch file.
func LoadFile(path string) ([]Operation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read patch file %s", path)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, invalid(errors.Wrapf(err, "parse patch file %s", path))
	}
	if _, ok := probe["patch"]; !ok {
		return nil, invalid(ErrMissingPatch)
	}
	var f File
	if err := utiljson.Unmarshal(raw, &f); err != nil {
		return nil, invalid(errors.Wrapf(err, "parse patch file %s", path))
	}
	return f.Patch, nil
}

// ApplyFile applies the operations of the patch file at path.
func ApplyFile(doc Document, path string) (Document, error) {
	ops, err := LoadFile(path)
	if err != nil {
		return doc, err
	}
	return Apply(doc, ops...)
}

func fromValues(op Op, values *orderedmap.OrderedMap[string, interface{}]) []Operation {
	if values == nil {
		return nil
	}
	ops := make([]Operation, 0, values.Len())
	for pair := values.Oldest(); pair != nil; pair = pair.Next() {
		ops = append(ops, Operation{Op: op, Path: pair.Key, Value: pair.Value})
	}
	return ops
}

func check(op Operation) error {
	switch op.Op {
	case OpAdd, OpRemove:
		if isConditional(op.Path) {
			return ErrConditionalPath
		}
	case OpReplace:
	default:
		return errors.Wrapf(ErrUnsupportedOp, "%q", op.Op)
	}
	if strings.TrimSpace(op.Path) == "" {
		return errors.New("empty path")
	}
	return nil
}

// jsonOp is one RFC 6902 operation handed to json-patch.
type jsonOp struct {
	Op    Op              `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

func applyOne(raw []byte, op Operation) ([]byte, error) {
	var pointers []string
	if isConditional(op.Path) {
		var tree interface{}
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, err
		}
		matches, err := resolveConditional(tree, op.Path)
		if err != nil {
			return nil, err
		}
		pointers = matches
	} else {
		pointers = []string{Pointer(op.Path)}
	}

	var value json.RawMessage
	if op.Op != OpRemove {
		v, err := json.Marshal(op.Value)
		if err != nil {
			return nil, errors.Wrap(err, "encode value")
		}
		value = v
	}
	ops := make([]jsonOp, 0, len(pointers))
	for _, p := range pointers {
		ops = append(ops, jsonOp{Op: op.Op, Path: p, Value: value})
	}
	encoded, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(encoded)
	if err != nil {
		return nil, err
	}
	opts := jsonpatch.NewApplyOptions()
	opts.EnsurePathExistsOnAdd = true
	return patch.ApplyWithOptions(raw, opts)
}

func invalid(err error) error {
	return retry.Mark(retry.KindValidation, err)
}
