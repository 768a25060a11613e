package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/microsoft/arcdata-cli/pkg/applyargs"
)

// Optional flags are read back as nil unless the user set them, so that edits only
// touch what was asked for.

func optString(fs *pflag.FlagSet, name string) *string {
	if !fs.Changed(name) {
		return nil
	}
	v, _ := fs.GetString(name)
	return &v
}

func optInt32(fs *pflag.FlagSet, name string) *int32 {
	if !fs.Changed(name) {
		return nil
	}
	v, _ := fs.GetInt32(name)
	return &v
}

func optInt(fs *pflag.FlagSet, name string) *int {
	if !fs.Changed(name) {
		return nil
	}
	v, _ := fs.GetInt(name)
	return &v
}

func addResourceFlags(fs *pflag.FlagSet, roleScoped bool) {
	help := "%s, e.g. 4Gi"
	if roleScoped {
		help = "%s, e.g. 4Gi or coordinator=4Gi,worker=2Gi"
	}
	fs.String("memory-request", "", fmt.Sprintf(help, "memory request"))
	fs.String("memory-limit", "", fmt.Sprintf(help, "memory limit"))
	fs.String("cores-request", "", fmt.Sprintf(help, "CPU request"))
	fs.String("cores-limit", "", fmt.Sprintf(help, "CPU limit"))
}

func resourceArgs(fs *pflag.FlagSet) applyargs.Resources {
	return applyargs.Resources{
		MemoryRequest: optString(fs, "memory-request"),
		MemoryLimit:   optString(fs, "memory-limit"),
		CoresRequest:  optString(fs, "cores-request"),
		CoresLimit:    optString(fs, "cores-limit"),
	}
}

func addStorageFlags(fs *pflag.FlagSet) {
	for _, area := range []string{"data", "logs", "backups", "datalogs"} {
		fs.String("storage-class-"+area, "", "storage class of the "+area+" volumes")
		fs.String("volume-size-"+area, "", "size of the "+area+" volumes, e.g. 10Gi")
	}
}

func storageArgs(fs *pflag.FlagSet) applyargs.Storage {
	return applyargs.Storage{
		ClassData:     optString(fs, "storage-class-data"),
		ClassLogs:     optString(fs, "storage-class-logs"),
		ClassBackups:  optString(fs, "storage-class-backups"),
		ClassDataLogs: optString(fs, "storage-class-datalogs"),
		SizeData:      optString(fs, "volume-size-data"),
		SizeLogs:      optString(fs, "volume-size-logs"),
		SizeBackups:   optString(fs, "volume-size-backups"),
		SizeDataLogs:  optString(fs, "volume-size-datalogs"),
	}
}
