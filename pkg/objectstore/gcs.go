package objectstore

import (
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/microsoft/arcdata-cli/pkg/config"
)

type gcsProvider struct {
	cfg    config.ObjectStoreConfig
	client *storage.Client
}

func newGCSProvider(ctx context.Context, cfg config.ObjectStoreConfig) (Provider, error) {
	var options []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.GCPCredentialsJSON) != "":
		options = append(options, option.WithCredentialsJSON([]byte(cfg.GCPCredentialsJSON)))
	case strings.TrimSpace(cfg.GCPCredentialsFile) != "":
		options = append(options, option.WithCredentialsFile(cfg.GCPCredentialsFile))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		options = append(options, option.WithEndpoint(endpoint))
	}
	client, err := storage.NewClient(ctx, options...)
	if err != nil {
		return nil, errors.Wrap(err, "create gcs client")
	}
	return &gcsProvider{cfg: cfg, client: client}, nil
}

func (p *gcsProvider) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := p.client.Bucket(p.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: ResolveKey(p.cfg.Prefix, prefix)})
	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		objects = append(objects, ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			ETag:         attrs.Etag,
			LastModified: attrs.Updated,
		})
	}
	return objects, nil
}

func (p *gcsProvider) Upload(ctx context.Context, key string, localPath string) (ObjectInfo, error) {
	remoteKey := ResolveKey(p.cfg.Prefix, key)
	file, err := os.Open(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer file.Close()

	writer := p.client.Bucket(p.cfg.Bucket).Object(remoteKey).NewWriter(ctx)
	writer.ContentType = contentType(localPath)
	written, err := io.Copy(writer, file)
	if err != nil {
		_ = writer.Close()
		return ObjectInfo{}, err
	}
	if err := writer.Close(); err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: remoteKey, Size: written, ETag: writer.Attrs().Etag}, nil
}

func (p *gcsProvider) Close() error {
	return p.client.Close()
}
