package controllersvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

var testGroup = ServerGroup{Kind: "postgresql", Namespace: "arc", UID: "6c1f0f3e-uid"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{
		Endpoint:  srv.URL,
		Username:  "admin",
		Password:  "s3cret!",
		Transport: srv.Client(),
		Policy:    retry.NewPolicy("controller", 2, time.Millisecond, retry.Network),
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(Options{})
	assert.ErrorIs(t, err, ErrNoEndpoint)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))
}

func TestCreateBackup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/dusky/v1/postgresql/arc/6c1f0f3e-uid/backups", r.URL.Path)
		assert.Equal(t, "nightly", r.URL.Query().Get("name"))
		assert.Equal(t, "true", r.URL.Query().Get("incremental"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "s3cret!", pass)
		_, _ = w.Write([]byte(`{"backup":{"label":"nightly","size":2048,"backupType":2},
			"receipt":{"id":"ab-cd-ef"},"progress":1,"timestamp":{"seconds":1600000000}}`))
	})

	resp, err := c.CreateBackup(context.Background(), testGroup, "nightly", true)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", resp.ID())
	assert.Equal(t, poll.JobActive, resp.State())
	assert.Equal(t, "Incr", resp.Backup.Type())
	assert.Equal(t, "2.0 KiB", resp.Backup.HumanSize())
	assert.Equal(t, time.Unix(1600000000, 0).UTC(), resp.Time())
}

func TestRejectedRequestReportsMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"result":false,"message":"no backup volume"}}`))
	})
	_, err := c.CreateBackup(context.Background(), testGroup, "", false)
	require.Error(t, err)
	assert.Equal(t, "failed to create the backup. no backup volume", err.Error())
}

func TestListBackups(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dusky/v1/postgresql/arc/6c1f0f3e-uid/backups", r.URL.Path)
		_, _ = w.Write([]byte(`{"backups":[
			{"backup":{"label":"a"},"receipt":{"id":"1-1"}},
			{"backup":{"label":"b"},"receipt":{"id":"2-2"}},
			{"backup":{"label":"b"},"receipt":{"id":"3-3"}}]}`))
	})

	backups, err := c.ListBackups(context.Background(), testGroup)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Equal(t, "Full", backups[0].Backup.Type())

	id, err := FindBackupID(backups, "a")
	require.NoError(t, err)
	assert.Equal(t, "11", id)

	_, err = FindBackupID(backups, "b")
	assert.Equal(t, retry.KindValidation, retry.Classify(err))

	_, err = FindBackupID(backups, "missing")
	assert.ErrorIs(t, err, retry.ErrNotFound)
}

func TestDeleteBackup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/dusky/v1/postgresql/arc/6c1f0f3e-uid/backups/gone" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(`{"backup":{"label":"a"},"receipt":{"id":"x-y"}}`))
	})

	resp, err := c.DeleteBackup(context.Background(), testGroup, "xy")
	require.NoError(t, err)
	assert.Equal(t, "xy", resp.ID())

	_, err = c.DeleteBackup(context.Background(), testGroup, "gone")
	assert.ErrorIs(t, err, retry.ErrNotFound)
	assert.Equal(t, retry.KindNotFound, retry.Classify(err))
}

func TestRestoreAndStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dusky/v1/postgresql/arc/6c1f0f3e-uid/restore":
			assert.Equal(t, "abc", r.URL.Query().Get("backupId"))
			assert.Equal(t, "0d9e-source-uid", r.URL.Query().Get("sourceServerGroupId"))
			assert.Equal(t, "2h", r.URL.Query().Get("time"))
			_, _ = w.Write([]byte(`{"progress":0}`))
		case "/dusky/v1/postgresql/arc/6c1f0f3e-uid/restore/status":
			_, _ = w.Write([]byte(`{"progress":3}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	resp, err := c.Restore(context.Background(), testGroup, "abc", "0d9e-source-uid", "2h")
	require.NoError(t, err)
	assert.Equal(t, poll.JobPending, resp.State())

	resp, err = c.RestoreStatus(context.Background(), testGroup)
	require.NoError(t, err)
	assert.Equal(t, poll.JobFailed, resp.State())
}

func TestServerErrorsAreRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"progress":2}`))
	})
	resp, err := c.RestoreStatus(context.Background(), testGroup)
	require.NoError(t, err)
	assert.Equal(t, poll.JobDone, resp.State())
	assert.Equal(t, 2, calls)
}

func TestExportJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/export/file", r.URL.Path)
		switch r.URL.Query().Get("path") {
		case "/exports/index.json":
			_, _ = w.Write([]byte(`{'publicSigningCertificate':'pem','endTime':'2021-06-01T00:00:00Z',
				'customResourceDeletionList':[{'kind':'postgresql','instanceName':'old','instanceNamespace':'arc'}],
				'dataFilePathList':['/exports/data-0.json']}`))
		case "/exports/empty.json":
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	var index ExportIndex
	require.NoError(t, c.ExportJSON(context.Background(), "/exports/index.json", &index))
	assert.Equal(t, "pem", index.PublicSigningCertificate)
	assert.Equal(t, []string{"/exports/data-0.json"}, index.DataFilePathList)
	assert.Equal(t, "old", index.CustomResourceDeletionList[0]["instanceName"])

	err := c.ExportJSON(context.Background(), "/exports/empty.json", &index)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = c.ExportFile(context.Background(), "/exports/missing.json")
	assert.Equal(t, retry.KindNotFound, retry.Classify(err))
}
