package controllersvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const backupAPIVersion = "1"

// backupTypeIncremental is the controller's code for an incremental backup.
const backupTypeIncremental = 2

// Backup describes one backup.
type Backup struct {
	Label      string `json:"label"`
	Size       uint64 `json:"size"`
	BackupType int    `json:"backupType"`
}

// Type is Incr or Full.
func (b Backup) Type() string {
	if b.BackupType == backupTypeIncremental {
		return "Incr"
	}
	return "Full"
}

// HumanSize renders Size with binary units.
func (b Backup) HumanSize() string { return humanize.IBytes(b.Size) }

// Status reports whether the controller accepted a request.
type Status struct {
	Result  *bool           `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// OK is true unless the controller explicitly reported failure.
func (s Status) OK() bool { return s.Result == nil || *s.Result }

// BackupResponse is returned by every backup and restore call.
type BackupResponse struct {
	Backup  Backup `json:"backup"`
	Status  Status `json:"status"`
	Receipt *struct {
		ID string `json:"id"`
	} `json:"receipt,omitempty"`
	Progress  *int `json:"progress,omitempty"`
	Timestamp *struct {
		Seconds int64 `json:"seconds"`
	} `json:"timestamp,omitempty"`
}

// ID is the backup id without dashes.
func (r *BackupResponse) ID() string {
	if r.Receipt == nil {
		return ""
	}
	return strings.ReplaceAll(r.Receipt.ID, "-", "")
}

// State maps the progress code to a job state.
func (r *BackupResponse) State() poll.JobState {
	if r.Progress == nil {
		return poll.JobUnknown
	}
	return poll.ParseJobState(*r.Progress)
}

// Time is the backup timestamp, zero when unknown.
func (r *BackupResponse) Time() time.Time {
	if r.Timestamp == nil {
		return time.Time{}
	}
	return time.Unix(r.Timestamp.Seconds, 0).UTC()
}

// check turns a rejected request into an error naming what failed.
func (r *BackupResponse) check(what string) error {
	if r.Status.OK() {
		return nil
	}
	if r.Status.Message != "" {
		return errors.Errorf("failed to %s. %s", what, r.Status.Message)
	}
	return errors.Errorf("failed to %s.\n%s", what, string(r.Status.Details))
}

// ServerGroup addresses one server group on the controller. The controller keys
// server groups by the uid of their custom resource, not by name.
type ServerGroup struct {
	Kind      string
	Namespace string
	UID       string
}

func (c *Client) serverGroupURL(sg ServerGroup, parts ...string) string {
	segments := []string{c.endpoint, "dusky", "v" + backupAPIVersion,
		url.PathEscape(sg.Kind), url.PathEscape(sg.Namespace), url.PathEscape(sg.UID)}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return strings.Join(segments, "/")
}

func (c *Client) backupCall(ctx context.Context, what, method, target string) (*BackupResponse, error) {
	_, body, err := c.send(ctx, what, method, target, http.StatusOK, http.StatusCreated, http.StatusAccepted)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", what)
	}
	resp := &BackupResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, errors.Wrapf(err, "decode %s response", what)
	}
	return resp, resp.check(what)
}

// CreateBackup starts a full or incremental backup. name may be empty.
func (c *Client) CreateBackup(ctx context.Context, sg ServerGroup, name string, incremental bool) (*BackupResponse, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("incremental", strconv.FormatBool(incremental))
	return c.backupCall(ctx, "create the backup", http.MethodPost, c.serverGroupURL(sg, "backups")+"?"+q.Encode())
}

// ShowBackup returns one backup.
func (c *Client) ShowBackup(ctx context.Context, sg ServerGroup, id string) (*BackupResponse, error) {
	return c.backupCall(ctx, "get the backup", http.MethodGet, c.serverGroupURL(sg, "backups", id))
}

// ListBackups returns every backup of the server group.
func (c *Client) ListBackups(ctx context.Context, sg ServerGroup) ([]BackupResponse, error) {
	_, body, err := c.send(ctx, "list backups", http.MethodGet, c.serverGroupURL(sg, "backups"), http.StatusOK)
	if err != nil {
		return nil, errors.Wrap(err, "list backups")
	}
	var out struct {
		Backups []BackupResponse `json:"backups"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, "decode backup list")
	}
	for i := range out.Backups {
		if err := out.Backups[i].check("list backups"); err != nil {
			return nil, err
		}
	}
	return out.Backups, nil
}

// DeleteBackup deletes a backup. A backup the controller does not know yields
// retry.ErrNotFound.
func (c *Client) DeleteBackup(ctx context.Context, sg ServerGroup, id string) (*BackupResponse, error) {
	status, body, err := c.send(ctx, "delete the backup", http.MethodDelete, c.serverGroupURL(sg, "backups", id),
		http.StatusOK, http.StatusAccepted, http.StatusNoContent)
	if err != nil {
		return nil, errors.Wrap(err, "delete the backup")
	}
	if status == http.StatusNoContent {
		return nil, errors.Wrapf(retry.ErrNotFound, "backup %s", id)
	}
	resp := &BackupResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, errors.Wrap(err, "decode delete response")
	}
	return resp, resp.check("delete the backup")
}

// Restore starts a restore of backupID, or of the latest backup when empty. A
// non-empty source is the uid of another server group sharing the backup volume.
// at is an absolute UTC time or a relative offset such as 2h.
func (c *Client) Restore(ctx context.Context, sg ServerGroup, backupID, source, at string) (*BackupResponse, error) {
	q := url.Values{}
	q.Set("backupId", backupID)
	q.Set("sourceServerGroupId", source)
	q.Set("time", at)
	return c.backupCall(ctx, "restore the backup", http.MethodPost, c.serverGroupURL(sg, "restore")+"?"+q.Encode())
}

// RestoreStatus returns the progress of the last restore.
func (c *Client) RestoreStatus(ctx context.Context, sg ServerGroup) (*BackupResponse, error) {
	return c.backupCall(ctx, "get the restore status", http.MethodGet, c.serverGroupURL(sg, "restore", "status"))
}

// FindBackupID resolves a backup label to its id.
func FindBackupID(backups []BackupResponse, label string) (string, error) {
	var ids []string
	for i := range backups {
		if backups[i].Backup.Label == label {
			ids = append(ids, backups[i].ID())
		}
	}
	switch len(ids) {
	case 0:
		return "", errors.Wrapf(retry.ErrNotFound, "backup %q", label)
	case 1:
		return ids[0], nil
	}
	return "", retry.Mark(retry.KindValidation,
		errors.Errorf("%d backups are named %q, specify the backup id instead", len(ids), label))
}
