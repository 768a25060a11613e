package arcdata

import (
	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/pkg/patch"
	"github.com/microsoft/arcdata-cli/pkg/retry"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

// ConfigAdd adds the --json-values pairs to a custom resource file.
func (h *Handler) ConfigAdd(path, jsonValues string) (patch.Document, error) {
	values, err := patch.ParseValues(jsonValues)
	if err != nil {
		return nil, err
	}
	return h.editConfig(path, func(doc patch.Document) (patch.Document, error) {
		return patch.Add(doc, values)
	})
}

// ConfigReplace replaces existing values of a custom resource file.
func (h *Handler) ConfigReplace(path, jsonValues string) (patch.Document, error) {
	values, err := patch.ParseValues(jsonValues)
	if err != nil {
		return nil, err
	}
	return h.editConfig(path, func(doc patch.Document) (patch.Document, error) {
		return patch.Replace(doc, values)
	})
}

// ConfigRemove removes the --json-path entries from a custom resource file.
func (h *Handler) ConfigRemove(path, jsonPath string) (patch.Document, error) {
	paths := patch.ParsePaths(jsonPath)
	if len(paths) == 0 {
		return nil, retry.Mark(retry.KindValidation, errors.New("no json path given"))
	}
	return h.editConfig(path, func(doc patch.Document) (patch.Document, error) {
		return patch.Remove(doc, paths)
	})
}

// ConfigPatch applies a patch file to a custom resource file.
func (h *Handler) ConfigPatch(path, patchFile string) (patch.Document, error) {
	return h.editConfig(path, func(doc patch.Document) (patch.Document, error) {
		return patch.ApplyFile(doc, patchFile)
	})
}

// editConfig rewrites the file only when the edited document is still a valid
// custom resource.
func (h *Handler) editConfig(path string, edit func(patch.Document) (patch.Document, error)) (patch.Document, error) {
	doc, err := patch.EditFile(path, func(doc patch.Document) (patch.Document, error) {
		out, err := edit(doc)
		if err != nil {
			return nil, err
		}
		return out, validation.Document(out)
	})
	if err != nil {
		return nil, err
	}
	raw, err := patch.Marshal(doc)
	if err != nil {
		return nil, err
	}
	h.printf("%s", raw)
	return doc, nil
}
