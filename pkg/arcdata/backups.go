package arcdata

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/controllersvc"
	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// relativeRestoreTime matches an offset into the past such as 90m, 1.5h, 2d or 1w.
var relativeRestoreTime = regexp.MustCompile(`^(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)[mMhHdDwW]$`)

// absoluteTimeLayouts are tried in order. Layouts without a zone are read in local
// time.
var absoluteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseRestoreTime returns the controller form of a restore point: relative offsets
// are passed through in lower case, absolute times are converted to UTC.
func ParseRestoreTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if relativeRestoreTime.MatchString(s) {
		return strings.ToLower(s), nil
	}
	for _, layout := range absoluteTimeLayouts {
		loc := time.Local
		if layout == time.RFC3339Nano {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", retry.Mark(retry.KindValidation,
		errors.Errorf("invalid restore time '%s'; use an offset such as 2h or 1.5d, or a date and time", s))
}

func (h *Handler) serverGroup(ctx context.Context, name string) (*v1beta1.PostgreSQL, controllersvc.ServerGroup, error) {
	pg, err := h.getPostgres(ctx, name)
	if err != nil {
		return nil, controllersvc.ServerGroup{}, err
	}
	kind := pg.Kind
	if kind == "" {
		kind = v1beta1.PostgreSQLKind
	}
	return pg, controllersvc.ServerGroup{Kind: kind, Namespace: h.namespace(), UID: string(pg.UID)}, nil
}

// BackupCreate holds the arguments of postgres server backup create.
type BackupCreate struct {
	Server      string
	Name        string
	Incremental bool
	NoWait      bool
}

// BackupCreate starts a backup and, unless NoWait, waits for it to finish.
func (h *Handler) BackupCreate(ctx context.Context, opts BackupCreate) (*controllersvc.BackupResponse, error) {
	_, sg, err := h.serverGroup(ctx, opts.Server)
	if err != nil {
		return nil, err
	}
	svc, err := h.controller(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.CreateBackup(ctx, sg, opts.Name, opts.Incremental)
	if err != nil {
		return nil, err
	}
	id := resp.ID()
	h.Logger.Info("backup started", zap.String("server", opts.Server), zap.String("id", id))
	if opts.NoWait {
		h.printBackups([]controllersvc.BackupResponse{*resp})
		return resp, nil
	}

	state, err := h.poller("backup "+id).UntilJobFinished(ctx, func(ctx context.Context) (poll.JobState, error) {
		r, err := svc.ShowBackup(ctx, sg, id)
		if err != nil {
			return poll.JobUnknown, err
		}
		resp = r
		return r.State(), nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "wait for backup %s", id)
	}
	if state != poll.JobDone {
		return resp, errors.Errorf("backup %s of %s finished in state %s", id, opts.Server, state)
	}
	h.printBackups([]controllersvc.BackupResponse{*resp})
	return resp, nil
}

// BackupRestore holds the arguments of postgres server restore.
type BackupRestore struct {
	Server string
	// Source is the server group whose backups are restored; empty restores in place.
	Source   string
	BackupID string
	// Time is a point in time, absolute or relative.
	Time   string
	NoWait bool
}

// BackupRestore restores a backup into a server group and waits until the server
// group is ready again.
func (h *Handler) BackupRestore(ctx context.Context, opts BackupRestore) (*controllersvc.BackupResponse, error) {
	pg, sg, err := h.serverGroup(ctx, opts.Server)
	if err != nil {
		return nil, err
	}
	source := ""
	if opts.Source != "" && opts.Source != opts.Server {
		src, err := h.getPostgres(ctx, opts.Source)
		if err != nil {
			return nil, err
		}
		claim := pg.Spec.Storage.BackupClaim()
		if claim == "" || claim != src.Spec.Storage.BackupClaim() {
			return nil, retry.Mark(retry.KindValidation, errors.Errorf(
				"server groups %s and %s must mount the same backup volume claim to restore across them", opts.Source, opts.Server))
		}
		source = string(src.UID)
	} else if pg.Spec.Engine.Version == 11 {
		return nil, retry.Mark(retry.KindValidation,
			errors.Errorf("in-place restore is not supported for Postgres 11; restore %s into a new server group", opts.Server))
	}
	at, err := ParseRestoreTime(opts.Time)
	if err != nil {
		return nil, err
	}

	svc, err := h.controller(ctx)
	if err != nil {
		return nil, err
	}
	start := h.now()
	resp, err := svc.Restore(ctx, sg, opts.BackupID, source, at)
	if err != nil {
		return nil, err
	}
	h.Logger.Info("restore started", zap.String("server", opts.Server), zap.String("source", opts.Source), zap.String("time", at))
	if opts.NoWait {
		return resp, nil
	}

	p := h.poller("restore of " + opts.Server)
	state, err := p.UntilJobFinished(ctx, func(ctx context.Context) (poll.JobState, error) {
		r, err := svc.RestoreStatus(ctx, sg)
		if err != nil {
			return poll.JobUnknown, err
		}
		resp = r
		return r.State(), nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "wait for restore of %s", opts.Server)
	}
	if state != poll.JobDone {
		return resp, errors.Errorf("restore of %s finished in state %s", opts.Server, state)
	}
	if err := p.Settle(ctx, start, h.objectState(postgresKind.gvk, opts.Server)); err != nil {
		return resp, errors.Wrapf(err, "wait for %s after restore", opts.Server)
	}
	h.printf("Restore of %s completed\n", opts.Server)
	return resp, nil
}

// BackupList prints the backups of a server group.
func (h *Handler) BackupList(ctx context.Context, server string) ([]controllersvc.BackupResponse, error) {
	_, sg, err := h.serverGroup(ctx, server)
	if err != nil {
		return nil, err
	}
	svc, err := h.controller(ctx)
	if err != nil {
		return nil, err
	}
	backups, err := svc.ListBackups(ctx, sg)
	if err != nil {
		return nil, err
	}
	h.printBackups(backups)
	return backups, nil
}

// BackupDelete holds the arguments of postgres server backup delete. One of Name
// and ID is required.
type BackupDelete struct {
	Server string
	Name   string
	ID     string
}

// BackupDelete deletes a backup. A backup that does not exist is reported with a
// warning and is not an error; the result tells whether something was deleted.
func (h *Handler) BackupDelete(ctx context.Context, opts BackupDelete) (bool, error) {
	if (opts.Name == "") == (opts.ID == "") {
		return false, retry.Mark(retry.KindValidation, errors.New("specify either the backup name or the backup id"))
	}
	_, sg, err := h.serverGroup(ctx, opts.Server)
	if err != nil {
		return false, err
	}
	svc, err := h.controller(ctx)
	if err != nil {
		return false, err
	}
	id := opts.ID
	if id == "" {
		backups, err := svc.ListBackups(ctx, sg)
		if err != nil {
			return false, err
		}
		if id, err = controllersvc.FindBackupID(backups, opts.Name); err != nil {
			if errors.Is(err, retry.ErrNotFound) {
				h.printf("Warning: backup %q of %s was not found\n", opts.Name, opts.Server)
				return false, nil
			}
			return false, err
		}
	}
	if _, err := svc.DeleteBackup(ctx, sg, id); err != nil {
		if errors.Is(err, retry.ErrNotFound) {
			h.printf("Warning: backup %s of %s was not found\n", id, opts.Server)
			return false, nil
		}
		return false, err
	}
	h.printf("Deleted backup %s of %s\n", id, opts.Server)
	return true, nil
}

func (h *Handler) printBackups(backups []controllersvc.BackupResponse) {
	if h.Out == nil {
		return
	}
	w := tabwriter.NewWriter(h.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSIZE\tTIMESTAMP\tSTATE")
	for i := range backups {
		b := &backups[i]
		ts := ""
		if t := b.Time(); !t.IsZero() {
			ts = t.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", b.ID(), b.Backup.Label, b.Backup.Type(), b.Backup.HumanSize(), ts, b.State())
	}
	_ = w.Flush()
}
