package controllersvc

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// ExportIndex is the index file written by a completed export task.
type ExportIndex struct {
	PublicSigningCertificate   string                   `json:"publicSigningCertificate"`
	EndTime                    string                   `json:"endTime"`
	CustomResourceDeletionList []map[string]interface{} `json:"customResourceDeletionList"`
	DataFilePathList           []string                 `json:"dataFilePathList"`
}

// ExportFile downloads a file produced by an export task.
func (c *Client) ExportFile(ctx context.Context, path string) ([]byte, error) {
	q := url.Values{}
	q.Set("path", path)
	_, body, err := c.send(ctx, "download export file", http.MethodGet, c.endpoint+"/api/v1/export/file?"+q.Encode(), http.StatusOK)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", path)
	}
	return body, nil
}

// ExportJSON downloads an export file and decodes it. Some controller versions
// write single-quoted JSON, which is normalized first.
func (c *Client) ExportJSON(ctx context.Context, path string, into interface{}) error {
	body, err := c.ExportFile(ctx, path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.Wrapf(ErrEmptyFile, "%s", path)
	}
	body = bytes.ReplaceAll(body, []byte("'"), []byte(`"`))
	return errors.Wrapf(utiljson.Unmarshal(body, into), "decode %s", path)
}

// ErrEmptyFile is returned for an export file without content.
var ErrEmptyFile = errors.New("export file is empty")
