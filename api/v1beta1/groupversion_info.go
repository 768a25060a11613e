// Package v1beta1 contains typed views of the Arc data services custom resources.
// +groupName=arcdata.microsoft.com
package v1beta1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	// Version is the served version of every Arc data services group.
	Version = "v1beta1"

	ArcGroup   = "arcdata.microsoft.com"
	SQLGroup   = "sql.arcdata.microsoft.com"
	TasksGroup = "tasks.arcdata.microsoft.com"
)

var (
	ArcGroupVersion   = schema.GroupVersion{Group: ArcGroup, Version: Version}
	SQLGroupVersion   = schema.GroupVersion{Group: SQLGroup, Version: Version}
	TasksGroupVersion = schema.GroupVersion{Group: TasksGroup, Version: Version}

	PostgreSQLResource         = ArcGroupVersion.WithResource("postgresqls")
	DataControllerResource     = ArcGroupVersion.WithResource("datacontrollers")
	SQLManagedInstanceResource = SQLGroupVersion.WithResource("sqlmanagedinstances")
	ExportTaskResource         = TasksGroupVersion.WithResource("exporttasks")
	DagResource                = SQLGroupVersion.WithResource("dags")
	MonitorResource            = ArcGroupVersion.WithResource("monitors")
)

// Kinds as written in the custom resource documents.
const (
	PostgreSQLKind         = "postgresql"
	SQLManagedInstanceKind = "sqlmanagedinstance"
	DataControllerKind     = "datacontroller"
	ExportTaskKind         = "ExportTask"
	DagKind                = "Dag"
	MonitorKind            = "Monitor"
)

// MonitorName is the monitor resource the data controller deploys in its namespace.
const MonitorName = "monitorstack"
