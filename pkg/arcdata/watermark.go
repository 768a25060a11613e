package arcdata

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	watermarkFile = "upload-status.yaml"

	// defaultExportWindow is exported when nothing has been uploaded yet.
	defaultExportWindow = 45 * 24 * time.Hour
)

// watermarks maps an export type to the data timestamp of its last upload.
type watermarks map[string]time.Time

func (h *Handler) watermarkPath() string {
	return filepath.Join(h.Config.StateDir, watermarkFile)
}

func (h *Handler) loadWatermarks() (watermarks, error) {
	raw, err := os.ReadFile(h.watermarkPath())
	if os.IsNotExist(err) {
		return watermarks{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read upload status")
	}
	w := watermarks{}
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrapf(err, "parse %s", h.watermarkPath())
	}
	return w, nil
}

// exportStart is the start of the next export window of exportType.
func (h *Handler) exportStart(exportType string, end time.Time) (time.Time, error) {
	w, err := h.loadWatermarks()
	if err != nil {
		return time.Time{}, err
	}
	if t, ok := w[exportType]; ok && t.Before(end) {
		return t, nil
	}
	return end.Add(-defaultExportWindow), nil
}

// advanceWatermark records ts as the last upload of exportType unless a later one
// is already recorded.
func (h *Handler) advanceWatermark(exportType string, ts time.Time) error {
	w, err := h.loadWatermarks()
	if err != nil {
		return err
	}
	if prev, ok := w[exportType]; ok && !prev.Before(ts) {
		return nil
	}
	w[exportType] = ts.UTC()
	raw, err := yaml.Marshal(w)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(h.Config.StateDir, 0o700); err != nil {
		return errors.Wrap(err, "create state directory")
	}
	return errors.Wrap(os.WriteFile(h.watermarkPath(), raw, 0o600), "write upload status")
}
