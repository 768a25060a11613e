// Package objectstore uploads export archives to S3, GCS, Azure Blob or MinIO.
package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/pkg/config"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// Provider names.
const (
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderAzure = "azure"
	ProviderMinIO = "minio"
)

// ObjectInfo captures metadata about a remote object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Provider is an object store bucket.
type Provider interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Upload(ctx context.Context, key string, localPath string) (ObjectInfo, error)
	Close() error
}

// NewProvider creates a provider client from cfg.
func NewProvider(ctx context.Context, cfg config.ObjectStoreConfig) (Provider, error) {
	provider := NormalizeProvider(cfg.Provider)
	if provider == "" {
		return nil, retry.Mark(retry.KindValidation, errors.New("objectstore provider is required"))
	}
	if cfg.Bucket == "" {
		return nil, retry.Mark(retry.KindValidation, errors.New("objectstore bucket is required"))
	}
	cfg.Provider = provider
	switch provider {
	case ProviderS3:
		return newS3Provider(ctx, cfg)
	case ProviderGCS:
		return newGCSProvider(ctx, cfg)
	case ProviderAzure:
		return newAzureProvider(cfg)
	case ProviderMinIO:
		return newMinIOProvider(cfg)
	}
	return nil, retry.Mark(retry.KindValidation, errors.Errorf("unsupported objectstore provider: %s", cfg.Provider))
}

// NormalizeProvider maps known aliases to provider names.
func NormalizeProvider(value string) string {
	provider := strings.ToLower(strings.TrimSpace(value))
	switch provider {
	case "aws", "s3":
		return ProviderS3
	case "gcp", "gcs":
		return ProviderGCS
	case "azure", "blob":
		return ProviderAzure
	}
	return provider
}

// ResolveKey joins a base prefix with a key without introducing double slashes.
func ResolveKey(prefix string, key string) string {
	cleanPrefix := strings.TrimPrefix(prefix, "/")
	cleanKey := strings.TrimPrefix(key, "/")
	switch {
	case cleanPrefix == "":
		return cleanKey
	case cleanKey == "":
		return cleanPrefix
	case strings.HasSuffix(cleanPrefix, "/"):
		return cleanPrefix + cleanKey
	}
	return cleanPrefix + "/" + cleanKey
}

// ErrObjectExists is returned when an archive would replace an existing object.
var ErrObjectExists = errors.New("object already exists")

// Archiver uploads the files of one export under a common folder.
type Archiver struct {
	Provider Provider
	Executor *retry.Executor
	Policy   retry.Policy
	Logger   *zap.Logger
	// Force replaces objects that already exist.
	Force bool
}

// Upload stores each file as <folder>/<base name>. Nothing is uploaded when an
// object would be replaced and Force is unset.
func (a *Archiver) Upload(ctx context.Context, folder string, paths ...string) ([]ObjectInfo, error) {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, errors.Wrapf(err, "archive %s", p)
		}
		keys[i] = ResolveKey(folder, filepath.Base(p))
	}

	if !a.Force {
		existing, err := retry.Do(ctx, a.Executor, a.Policy.WithName("list archive objects"), func(ctx context.Context) ([]ObjectInfo, error) {
			return a.Provider.List(ctx, folder)
		})
		if err != nil {
			return nil, errors.Wrap(err, "list archive objects")
		}
		// Listed keys carry the provider's base prefix.
		for _, o := range existing {
			for _, k := range keys {
				if o.Key == k || strings.HasSuffix(o.Key, "/"+k) {
					return nil, retry.Mark(retry.KindValidation, errors.Wrapf(ErrObjectExists, "%s", o.Key))
				}
			}
		}
	}

	var out []ObjectInfo
	for i, p := range paths {
		key := keys[i]
		info, err := retry.Do(ctx, a.Executor, a.Policy.WithName("upload archive object"), func(ctx context.Context) (ObjectInfo, error) {
			return a.Provider.Upload(ctx, key, p)
		})
		if err != nil {
			return out, errors.Wrapf(err, "upload %s", p)
		}
		logger.Info("archived export file", zap.String("file", p), zap.String("key", info.Key), zap.Int64("size", info.Size))
		out = append(out, info)
	}
	return out, nil
}
