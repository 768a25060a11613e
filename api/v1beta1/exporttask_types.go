package v1beta1

import (
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Export types.
const (
	ExportMetrics = "metrics"
	ExportLogs    = "logs"
	ExportUsage   = "usage"

	// ExportCompletedState is reported once the controller has written the export.
	ExportCompletedState = "Completed"
)

// ExportTypes lists the accepted export types.
var ExportTypes = []string{ExportMetrics, ExportLogs, ExportUsage}

// ExportTask asks the controller to collect metrics, logs or usage into files.
type ExportTask struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ExportTaskSpec `json:"spec"`
	Status *Status        `json:"status,omitempty"`
}

// ExportTaskSpec is spec of an export task.
type ExportTaskSpec struct {
	ExportType string `json:"exportType"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
}

// NewExportTask builds a task named export-<type>-<yyyy-mm-dd-HH-MM-SS>-<unix ms>.
func NewExportTask(namespace, exportType string, start, end, now time.Time) *ExportTask {
	name := fmt.Sprintf("export-%s-%s-%d", exportType, end.UTC().Format("2006-01-02-15-04-05"), now.UnixMilli())
	return &ExportTask{
		TypeMeta:   metav1.TypeMeta{APIVersion: TasksGroupVersion.String(), Kind: ExportTaskKind},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: ExportTaskSpec{
			ExportType: exportType,
			StartTime:  start.UTC().Format(time.RFC3339Nano),
			EndTime:    end.UTC().Format(time.RFC3339Nano),
		},
	}
}

// ExportTaskFromMap hydrates an export task from a document.
func ExportTaskFromMap(m map[string]interface{}) (*ExportTask, error) {
	t := &ExportTask{}
	if err := fromMap(m, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ToUnstructured renders the task for the dynamic client.
func (t *ExportTask) ToUnstructured() (*unstructured.Unstructured, error) { return toUnstructured(t) }
