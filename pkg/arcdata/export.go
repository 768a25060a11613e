package arcdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/azure"
	"github.com/microsoft/arcdata-cli/pkg/controllersvc"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/objectstore"
	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

// logsIngestionDelay keeps log exports clear of entries that are not indexed yet.
const logsIngestionDelay = 2 * time.Minute

// noDataExported is the path an export task reports when it collected nothing.
const noDataExported = "No data are exported"

// ExportDocument is the file written by export and read by upload.
type ExportDocument struct {
	ExportType       string                     `json:"exportType"`
	DataController   azure.DataControllerRecord `json:"dataController"`
	DataTimestamp    string                     `json:"dataTimestamp"`
	Instances        []azure.InstanceRecord     `json:"instances"`
	DeletedInstances []azure.InstanceRecord     `json:"deletedInstances"`
	Data             json.RawMessage            `json:"data"`
	// EndUsage marks the last usage upload of a data controller; its Azure
	// resource is deleted afterwards.
	EndUsage bool `json:"end_usage,omitempty"`
}

// exportDocumentKeys must all be present in an uploaded file.
var exportDocumentKeys = []string{"exportType", "dataController", "dataTimestamp", "instances", "deletedInstances", "data"}

// logFile is one log data file of a logs export.
type logFile struct {
	ExportType    string          `json:"exportType"`
	DataTimestamp string          `json:"dataTimestamp"`
	Data          json.RawMessage `json:"data"`
}

// Export holds the arguments of arc dc export.
type Export struct {
	Type  string
	Path  string
	Force bool
	// Archive also uploads the written files to Config.ObjectStore.
	Archive bool
}

// Export collects metrics, logs or usage through an export task and writes the
// export document to opts.Path. It returns nil without error when the controller
// had no data.
func (h *Handler) Export(ctx context.Context, opts Export) (*ExportDocument, error) {
	exportType := strings.ToLower(opts.Type)
	if err := validation.ExportType(exportType); err != nil {
		return nil, err
	}
	if !opts.Force {
		if _, err := os.Stat(opts.Path); err == nil {
			return nil, retry.Mark(retry.KindValidation,
				errors.Errorf("%s already exists; pass --force to overwrite it", opts.Path))
		}
	}
	dcObj, err := h.DataController(ctx)
	if err != nil {
		return nil, err
	}
	dc, err := v1beta1.DataControllerFromMap(dcObj.Object)
	if err != nil {
		return nil, err
	}
	if dc.IsDirect() {
		return nil, retry.Mark(retry.KindValidation, errors.New("export is not supported in direct connectivity mode"))
	}

	now := h.now().UTC()
	end := now
	if exportType == v1beta1.ExportLogs {
		end = end.Add(-logsIngestionDelay)
	}
	start, err := h.exportStart(exportType, end)
	if err != nil {
		return nil, err
	}
	task := v1beta1.NewExportTask(h.namespace(), exportType, start, end, now)
	obj, err := task.ToUnstructured()
	if err != nil {
		return nil, err
	}
	if err := h.Kube.CreateObject(ctx, obj); err != nil {
		return nil, errors.Wrapf(err, "create export task %s", task.Name)
	}
	h.printf("Export custom resource %s is created\n", task.Name)

	indexPath, err := h.waitExportTask(ctx, task.Name)
	if err != nil {
		return nil, err
	}
	svc, err := h.controller(ctx)
	if err != nil {
		return nil, err
	}
	var index controllersvc.ExportIndex
	if err := svc.ExportJSON(ctx, indexPath, &index); err != nil {
		return nil, errors.Wrap(err, "download export index")
	}

	dcRecord, err := azure.NewDataControllerRecord(dcObj, index.PublicSigningCertificate)
	if err != nil {
		return nil, err
	}
	instances, err := h.readyInstances(ctx)
	if err != nil {
		return nil, err
	}
	deleted, err := deletedInstances(index.CustomResourceDeletionList, instances)
	if err != nil {
		return nil, err
	}
	doc := &ExportDocument{
		ExportType:       exportType,
		DataController:   dcRecord,
		DataTimestamp:    index.EndTime,
		Instances:        instances,
		DeletedInstances: deleted,
	}

	var files []string
	switch exportType {
	case v1beta1.ExportMetrics, v1beta1.ExportUsage:
		if len(index.DataFilePathList) == 0 {
			h.printf("No %s are exported\n", exportType)
			return nil, nil
		}
		var data json.RawMessage
		if err := svc.ExportJSON(ctx, index.DataFilePathList[0], &data); err != nil {
			if errors.Is(err, controllersvc.ErrEmptyFile) {
				h.printNoData(dc)
				return nil, nil
			}
			return nil, errors.Wrap(err, "download export data")
		}
		doc.Data = data
	case v1beta1.ExportLogs:
		if files, err = h.downloadLogs(ctx, svc, opts.Path, index); err != nil {
			return nil, err
		}
		if len(files) == 0 {
			h.printf("No log is exported\n")
			return nil, nil
		}
		if doc.Data, err = json.Marshal(files); err != nil {
			return nil, err
		}
	}

	if err := writeIndented(opts.Path, doc); err != nil {
		return nil, err
	}
	h.printf("%s are exported to %s\n", exportType, opts.Path)
	if opts.Archive {
		if err := h.archive(ctx, exportType, end, opts.Force, append([]string{opts.Path}, files...)); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// waitExportTask polls the export task until it completes and returns the path of
// its index file.
func (h *Handler) waitExportTask(ctx context.Context, name string) (string, error) {
	var path string
	p := h.Config.ExportPoller(h.Executor, h.Logger, h.Observer)
	p.Resource = "export task " + name
	p.NewTimer = h.NewTimer
	fetch := func(ctx context.Context) (poll.State, error) {
		obj, err := h.Kube.ReadObject(ctx, kube.ExportTaskGVK, h.namespace(), name)
		if err != nil {
			return poll.State{}, err
		}
		path, _, _ = unstructured.NestedString(obj.Object, "status", "path")
		return stateOf(obj), nil
	}
	if _, err := p.Bounded(ctx, h.Config.ExportAttempts, fetch, poll.Reaches(v1beta1.ExportCompletedState)); err != nil {
		return "", errors.Wrapf(err, "wait for export task %s", name)
	}
	if path == "" || path == noDataExported {
		return "", errors.New("no data are exported")
	}
	return path, nil
}

// readyInstances lists the ready Postgres server groups and managed instances of
// the namespace.
func (h *Handler) readyInstances(ctx context.Context) ([]azure.InstanceRecord, error) {
	var out []azure.InstanceRecord
	for _, k := range []instanceKind{postgresKind, sqlmiKind} {
		items, err := h.Kube.ListObjects(ctx, k.gvk, h.namespace())
		if err != nil {
			if retry.Classify(err) == retry.KindNotFound {
				continue
			}
			return nil, err
		}
		for i := range items {
			if poll.IsReady(stateOf(&items[i])) {
				out = append(out, azure.NewInstanceRecord(&items[i]))
			}
		}
	}
	return out, nil
}

// deletedInstances drops deletions of instances that were recreated since; those
// are updated through the live list instead.
func deletedInstances(list []map[string]interface{}, live []azure.InstanceRecord) ([]azure.InstanceRecord, error) {
	active := make(map[string]bool, len(live))
	for i := range live {
		active[live[i].Key()] = true
	}
	out := []azure.InstanceRecord{}
	for _, m := range list {
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		var rec azure.InstanceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, errors.Wrap(err, "decode deleted instance")
		}
		if !active[rec.Key()] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (h *Handler) printNoData(dc *v1beta1.DataController) {
	s := dc.Spec.Security
	if s == nil || !s.AllowNodeMetricsCollection || !s.AllowPodMetricsCollection {
		h.printf("There are no metrics available for export. Set allowNodeMetricsCollection and allowPodMetricsCollection " +
			"to true in the data controller's security settings to collect metrics, then export them.\n")
		return
	}
	h.printf("Failed to get metrics. Check that you are connected to the right cluster and that the instances have metrics.\n")
}

// downloadLogs writes each log data file next to path as <base>-<n><ext>.
func (h *Handler) downloadLogs(ctx context.Context, svc *controllersvc.Client, path string, index controllersvc.ExportIndex) ([]string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	var files []string
	for _, src := range index.DataFilePathList {
		var data json.RawMessage
		if err := svc.ExportJSON(ctx, src, &data); err != nil {
			if errors.Is(err, controllersvc.ErrEmptyFile) {
				continue
			}
			return files, errors.Wrap(err, "download log file")
		}
		name := fmt.Sprintf("%s-%d%s", base, len(files), ext)
		if err := writeIndented(name, logFile{ExportType: v1beta1.ExportLogs, DataTimestamp: index.EndTime, Data: data}); err != nil {
			return files, err
		}
		files = append(files, name)
	}
	return files, nil
}

func (h *Handler) archive(ctx context.Context, exportType string, end time.Time, force bool, paths []string) error {
	provider, err := h.ObjectStore(ctx, h.Config.ObjectStore)
	if err != nil {
		return err
	}
	defer provider.Close()
	a := &objectstore.Archiver{
		Provider: provider,
		Executor: h.Executor,
		Policy:   h.Config.RetryPolicy("archive export", retry.Network),
		Logger:   h.Logger,
		Force:    force,
	}
	folder := exportType + "/" + end.Format("2006-01-02")
	objects, err := a.Upload(ctx, folder, paths...)
	if err != nil {
		return err
	}
	for _, o := range objects {
		h.printf("Archived %s (%d bytes)\n", o.Key, o.Size)
	}
	return nil
}

func writeIndented(path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0o600), "write %s", path)
}

// Upload sends an export document to Azure: the data controller and instance
// resources are synced and usage is uploaded. Failures to delete the resources of
// removed instances are reported but do not fail the upload.
func (h *Handler) Upload(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return retry.Mark(retry.KindValidation, errors.Wrapf(err, "cannot read %s", path))
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return retry.Mark(retry.KindValidation, errors.Wrapf(err, "parse %s", path))
	}
	for _, k := range exportDocumentKeys {
		if _, ok := keys[k]; !ok {
			return retry.Mark(retry.KindValidation, errors.Errorf("%q is not found in the input file %s", k, path))
		}
	}
	var doc ExportDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return retry.Mark(retry.KindValidation, errors.Wrapf(err, "parse %s", path))
	}
	if err := validation.ExportType(doc.ExportType); err != nil {
		return err
	}
	exportType := strings.ToLower(doc.ExportType)

	client, err := h.azureClient()
	if err != nil {
		return err
	}
	dc := doc.DataController
	if err := client.PutDataController(ctx, dc); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i := range doc.DeletedInstances {
		inst := &doc.DeletedInstances[i]
		if seen[inst.Key()] {
			continue
		}
		if _, err := client.DeleteInstance(ctx, dc, inst.Kind, inst.InstanceName); err != nil {
			h.printf("Failed to delete the Azure resource of %s in %s: %v\n", inst.InstanceName, inst.InstanceNamespace, err)
			continue
		}
		seen[inst.Key()] = true
	}
	for i := range doc.Instances {
		if err := client.PutInstance(ctx, dc, doc.Instances[i]); err != nil {
			return err
		}
	}

	switch exportType {
	case v1beta1.ExportUsage:
		var records []azure.UsageRecord
		if len(doc.Data) > 0 && string(doc.Data) != "null" {
			if err := json.Unmarshal(doc.Data, &records); err != nil {
				return retry.Mark(retry.KindValidation, errors.Wrap(err, "parse usage data"))
			}
		}
		if len(records) == 0 {
			h.printf("No usage has been reported. Usage is collected daily after the data controller is deployed.\n")
			break
		}
		h.printf("Uploading usage...\n")
		cv := uuid.NewString()
		for _, r := range records {
			if err := client.UploadUsage(ctx, dc, r, doc.DataTimestamp, cv); err != nil {
				return err
			}
		}
		if doc.EndUsage {
			if _, err := client.DeleteInstance(ctx, dc, dc.Kind, dc.InstanceName); err != nil {
				return err
			}
		}
		h.printf("Usage upload is done\n")
	default:
		h.printf("Uploading %s to Azure Monitor is not supported; only the Azure resources were updated\n", exportType)
	}

	ts, err := time.Parse(time.RFC3339Nano, doc.DataTimestamp)
	if err != nil {
		h.Logger.Warn("upload status not updated", zap.String("dataTimestamp", doc.DataTimestamp), zap.Error(err))
		return nil
	}
	return h.advanceWatermark(exportType, ts)
}
