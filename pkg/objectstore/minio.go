package objectstore

import (
	"context"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/pkg/config"
)

type minioProvider struct {
	cfg    config.ObjectStoreConfig
	client *minio.Client
}

// MinIOEndpoint strips the scheme from endpoint and reports whether TLS is used.
// A bare host uses TLS unless insecure is set.
func MinIOEndpoint(endpoint string, insecure bool) (string, bool, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	switch {
	case endpoint == "":
		return "", false, errors.New("minio endpoint is required")
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false, nil
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true, nil
	case strings.Contains(endpoint, "://"):
		return "", false, errors.Errorf("unsupported minio endpoint %q", endpoint)
	}
	return endpoint, !insecure, nil
}

func newMinIOProvider(cfg config.ObjectStoreConfig) (Provider, error) {
	host, secure, err := MinIOEndpoint(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}
	return &minioProvider{cfg: cfg, client: client}, nil
}

func (p *minioProvider) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	opts := minio.ListObjectsOptions{Prefix: ResolveKey(p.cfg.Prefix, prefix), Recursive: true}
	for object := range p.client.ListObjects(ctx, p.cfg.Bucket, opts) {
		if object.Err != nil {
			return nil, object.Err
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			ETag:         object.ETag,
			LastModified: object.LastModified,
		})
	}
	return objects, nil
}

func (p *minioProvider) Upload(ctx context.Context, key string, localPath string) (ObjectInfo, error) {
	remoteKey := ResolveKey(p.cfg.Prefix, key)
	info, err := p.client.FPutObject(ctx, p.cfg.Bucket, remoteKey, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: remoteKey, Size: info.Size, ETag: info.ETag}, nil
}

func (p *minioProvider) Close() error { return nil }
