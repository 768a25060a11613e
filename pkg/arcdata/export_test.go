package arcdata

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/azure"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

var exportNow = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

// exportFiles serves the controller's export file endpoint from a path to content
// map.
func exportFiles(files map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/export/file" {
			http.NotFound(w, r)
			return
		}
		body, ok := files[r.URL.Query().Get("path")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}
}

// readyPostgres is a server group whose listed status is already reconciled.
func readyPostgres(t *testing.T, name, state string) *unstructured.Unstructured {
	obj := postgresObject(t, name, state)
	obj.SetGeneration(1)
	_ = unstructured.SetNestedField(obj.Object, int64(1), "status", "observedGeneration")
	return obj
}

const usageIndex = `{'publicSigningCertificate': 'CERT', 'endTime': '2026-10-01T00:00:00.000000Z',
 'customResourceDeletionList': [
  {'kind': 'postgresql', 'instanceName': 'pg1', 'instanceNamespace': 'arc'},
  {'kind': 'postgresql', 'instanceName': 'old', 'instanceNamespace': 'arc'}],
 'dataFilePathList': ['/exports/usage-0.json']}`

func TestExportUsage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, reportReady,
		dataControllerObject(t, v1beta1.ConnectivityIndirect),
		readyPostgres(t, "pg1", "Ready"),
		readyPostgres(t, "pg2", "Creating"))
	env.handler.Now = func() time.Time { return exportNow }
	env.handler.Controller = newControllerClient(t, exportFiles(map[string]string{
		"/exports/index.json":   usageIndex,
		"/exports/usage-0.json": `[{'usages': 'abc', 'signature': 'sig'}]`,
	}))

	path := filepath.Join(t.TempDir(), "usage.json")
	doc, err := env.handler.Export(ctx, Export{Type: "Usage", Path: path})
	require.NoError(t, err)
	require.NotNil(t, doc)

	tasks, err := env.handler.Kube.ListObjects(ctx, kube.ExportTaskGVK, testNamespace)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	start, _, _ := unstructured.NestedString(tasks[0].Object, "spec", "startTime")
	assert.Equal(t, "2026-08-17T00:00:00Z", start)
	exportType, _, _ := unstructured.NestedString(tasks[0].Object, "spec", "exportType")
	assert.Equal(t, v1beta1.ExportUsage, exportType)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var written ExportDocument
	require.NoError(t, json.Unmarshal(raw, &written))
	assert.Equal(t, v1beta1.ExportUsage, written.ExportType)
	assert.Equal(t, "2026-10-01T00:00:00.000000Z", written.DataTimestamp)
	assert.Equal(t, "CERT", written.DataController.PublicKey)
	assert.Equal(t, "arc-dc", written.DataController.InstanceName)
	require.Len(t, written.Instances, 1)
	assert.Equal(t, "pg1", written.Instances[0].InstanceName)
	require.Len(t, written.DeletedInstances, 1)
	assert.Equal(t, "old", written.DeletedInstances[0].InstanceName)
	var records []azure.UsageRecord
	require.NoError(t, json.Unmarshal(written.Data, &records))
	assert.Equal(t, []azure.UsageRecord{{Usages: "abc", Signature: "sig"}}, records)

	_, err = env.handler.Export(ctx, Export{Type: "usage", Path: path})
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))
	assert.Contains(t, err.Error(), "--force")

	env.handler.Now = func() time.Time { return exportNow.Add(time.Second) }
	_, err = env.handler.Export(ctx, Export{Type: "usage", Path: path, Force: true})
	require.NoError(t, err)
}

func TestExportEmptyMetrics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, reportReady, dataControllerObject(t, v1beta1.ConnectivityIndirect))
	env.handler.Controller = newControllerClient(t, exportFiles(map[string]string{
		"/exports/index.json":     `{"endTime": "2026-10-01T00:00:00Z", "dataFilePathList": ["/exports/metrics-0.json"]}`,
		"/exports/metrics-0.json": "  ",
	}))

	path := filepath.Join(t.TempDir(), "metrics.json")
	doc, err := env.handler.Export(ctx, Export{Type: "metrics", Path: path})
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.NoFileExists(t, path)
	assert.Contains(t, env.out.String(), "Failed to get metrics")
}

func TestExportLogs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, reportReady, dataControllerObject(t, v1beta1.ConnectivityIndirect))
	env.handler.Now = func() time.Time { return exportNow }
	env.handler.Controller = newControllerClient(t, exportFiles(map[string]string{
		"/exports/index.json": `{"endTime": "2026-09-30T23:58:00Z", "dataFilePathList": ["/exports/logs-0.json", "/exports/logs-1.json", "/exports/logs-2.json"]}`,
		"/exports/logs-0.json": `[{"message": "a"}]`,
		"/exports/logs-1.json": ``,
		"/exports/logs-2.json": `[{"message": "b"}]`,
	}))

	dir := t.TempDir()
	path := filepath.Join(dir, "logs.json")
	doc, err := env.handler.Export(ctx, Export{Type: "logs", Path: path})
	require.NoError(t, err)

	var files []string
	require.NoError(t, json.Unmarshal(doc.Data, &files))
	assert.Equal(t, []string{filepath.Join(dir, "logs-0.json"), filepath.Join(dir, "logs-1.json")}, files)
	raw, err := os.ReadFile(files[1])
	require.NoError(t, err)
	var lf logFile
	require.NoError(t, json.Unmarshal(raw, &lf))
	assert.Equal(t, v1beta1.ExportLogs, lf.ExportType)
	assert.JSONEq(t, `[{"message": "b"}]`, string(lf.Data))

	tasks, err := env.handler.Kube.ListObjects(ctx, kube.ExportTaskGVK, testNamespace)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	end, _, _ := unstructured.NestedString(tasks[0].Object, "spec", "endTime")
	assert.Equal(t, "2026-09-30T23:58:00Z", end)
}

func TestExportRejects(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.json")

	env := newTestEnv(t, reportReady, dataControllerObject(t, v1beta1.ConnectivityIndirect))
	_, err := env.handler.Export(ctx, Export{Type: "traces", Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traces is not a supported type")

	env = newTestEnv(t, reportReady, dataControllerObject(t, v1beta1.ConnectivityDirect))
	_, err = env.handler.Export(ctx, Export{Type: "usage", Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direct connectivity mode")

	env = newTestEnv(t, reportReady)
	_, err = env.handler.Export(ctx, Export{Type: "usage", Path: path})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDataController)
}

func TestExportTaskWithoutData(t *testing.T) {
	env := newTestEnv(t, func(obj *unstructured.Unstructured) {
		_ = unstructured.SetNestedField(obj.Object, v1beta1.ExportCompletedState, "status", "state")
		_ = unstructured.SetNestedField(obj.Object, noDataExported, "status", "path")
	}, dataControllerObject(t, v1beta1.ConnectivityIndirect))

	_, err := env.handler.Export(context.Background(), Export{Type: "usage", Path: filepath.Join(t.TempDir(), "out.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data are exported")
}

func TestExportTaskFailed(t *testing.T) {
	var reads int
	env := newTestEnv(t, func(obj *unstructured.Unstructured) {
		if obj.GetKind() != v1beta1.ExportTaskKind {
			reportReady(obj)
			return
		}
		reads++
		_ = unstructured.SetNestedField(obj.Object, "Failed", "status", "state")
	}, dataControllerObject(t, v1beta1.ConnectivityIndirect))

	path := filepath.Join(t.TempDir(), "out.json")
	_, err := env.handler.Export(context.Background(), Export{Type: "usage", Path: path})
	require.Error(t, err)
	assert.ErrorIs(t, err, poll.ErrFailed)
	assert.NotErrorIs(t, err, poll.ErrNotReady)
	assert.Less(t, reads, env.handler.Config.ExportAttempts)
	assert.NoFileExists(t, path)
}

func writeExportDocument(t *testing.T, doc ExportDocument) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, writeIndented(path, doc))
	return path
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	var (
		mu    sync.Mutex
		calls []string
	)
	env.handler.Azure = newAzureClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})

	dc, err := azure.NewDataControllerRecord(dataControllerObject(t, v1beta1.ConnectivityIndirect), "CERT")
	require.NoError(t, err)
	usages, err := azure.EncodeUsages([]map[string]interface{}{{"instance": "pg1", "vcores": 2}})
	require.NoError(t, err)
	data, err := json.Marshal([]azure.UsageRecord{{Usages: usages, Signature: "sig"}})
	require.NoError(t, err)
	old := azure.InstanceRecord{Kind: v1beta1.PostgreSQLKind, InstanceName: "old", InstanceNamespace: testNamespace}
	path := writeExportDocument(t, ExportDocument{
		ExportType:       v1beta1.ExportUsage,
		DataController:   dc,
		DataTimestamp:    "2026-10-01T00:00:00Z",
		Instances:        []azure.InstanceRecord{azure.NewInstanceRecord(postgresObject(t, "pg1", "Ready"))},
		DeletedInstances: []azure.InstanceRecord{old, old},
		Data:             data,
		EndUsage:         true,
	})

	require.NoError(t, env.handler.Upload(ctx, path))
	const prefix = "/subscriptions/sub-1/resourcegroups/rg-1/providers/Microsoft.AzureArcData/"
	assert.Equal(t, []string{
		"PUT " + prefix + "dataControllers/arc-dc",
		"DELETE " + prefix + "postgresInstances/old",
		"PUT " + prefix + "postgresInstances/pg1",
		"POST /api" + prefix + "dataControllers/arc-dc",
		"DELETE " + prefix + "dataControllers/arc-dc",
	}, calls)
	assert.Contains(t, env.out.String(), "Usage upload is done")

	start, err := env.handler.exportStart(v1beta1.ExportUsage, exportNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, exportNow.Equal(start), "got %s", start)
}

func TestUploadMetricsOnlySyncsResources(t *testing.T) {
	env := newTestEnv(t, nil)
	var calls int
	env.handler.Azure = newAzureClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	})
	dc, err := azure.NewDataControllerRecord(dataControllerObject(t, v1beta1.ConnectivityIndirect), "")
	require.NoError(t, err)
	path := writeExportDocument(t, ExportDocument{
		ExportType:     v1beta1.ExportMetrics,
		DataController: dc,
		DataTimestamp:  "not a time",
		Data:           json.RawMessage(`[]`),
	})

	require.NoError(t, env.handler.Upload(context.Background(), path))
	assert.Equal(t, 1, calls)
	assert.Contains(t, env.out.String(), "Uploading metrics to Azure Monitor is not supported")
	assert.NoFileExists(t, filepath.Join(env.handler.Config.StateDir, watermarkFile))
}

func TestUploadRejectsIncompleteFile(t *testing.T) {
	env := newTestEnv(t, nil)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"exportType": "usage"}`), 0o600))

	err := env.handler.Upload(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))
	assert.Contains(t, err.Error(), `"dataController" is not found`)

	err = env.handler.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read")
}

func TestWatermarkOnlyMovesForward(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.handler

	start, err := h.exportStart(v1beta1.ExportMetrics, exportNow)
	require.NoError(t, err)
	assert.Equal(t, exportNow.Add(-defaultExportWindow), start)

	require.NoError(t, h.advanceWatermark(v1beta1.ExportMetrics, exportNow))
	require.NoError(t, h.advanceWatermark(v1beta1.ExportMetrics, exportNow.Add(-time.Hour)))
	w, err := h.loadWatermarks()
	require.NoError(t, err)
	assert.True(t, exportNow.Equal(w[v1beta1.ExportMetrics]))

	start, err = h.exportStart(v1beta1.ExportMetrics, exportNow)
	require.NoError(t, err)
	assert.Equal(t, exportNow.Add(-defaultExportWindow), start, "a watermark at the end of the window is ignored")
}
