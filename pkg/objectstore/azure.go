package objectstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/pkg/config"
)

type azureProvider struct {
	cfg    config.ObjectStoreConfig
	client *container.Client
}

func newAzureProvider(cfg config.ObjectStoreConfig) (Provider, error) {
	containerURL, err := AzureContainerURL(cfg)
	if err != nil {
		return nil, err
	}
	var client *container.Client
	switch {
	case strings.TrimSpace(cfg.AzureSASToken) != "":
		client, err = container.NewClientWithNoCredential(containerURL, nil)
	case strings.TrimSpace(cfg.AzureKey) != "":
		if strings.TrimSpace(cfg.AzureAccount) == "" {
			return nil, errors.New("azure account name is required for shared key auth")
		}
		credential, credErr := azblob.NewSharedKeyCredential(cfg.AzureAccount, cfg.AzureKey)
		if credErr != nil {
			return nil, errors.Wrap(credErr, "create shared key credential")
		}
		client, err = container.NewClientWithSharedKeyCredential(containerURL, credential, nil)
	default:
		credential, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, errors.Wrap(credErr, "create default azure credential")
		}
		client, err = container.NewClient(containerURL, credential, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "create container client")
	}
	return &azureProvider{cfg: cfg, client: client}, nil
}

// AzureContainerURL is the container URL for cfg, carrying the SAS token when set.
func AzureContainerURL(cfg config.ObjectStoreConfig) (string, error) {
	serviceURL := strings.TrimRight(strings.TrimSpace(cfg.AzureEndpoint), "/")
	if serviceURL == "" {
		if strings.TrimSpace(cfg.AzureAccount) == "" {
			return "", errors.New("azure endpoint or account name is required")
		}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccount)
	}
	containerURL := serviceURL + "/" + cfg.Bucket
	if token := strings.TrimPrefix(strings.TrimSpace(cfg.AzureSASToken), "?"); token != "" {
		containerURL += "?" + token
	}
	return containerURL, nil
}

func (p *azureProvider) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	options := &container.ListBlobsFlatOptions{}
	if remotePrefix := ResolveKey(p.cfg.Prefix, prefix); remotePrefix != "" {
		options.Prefix = &remotePrefix
	}
	pager := p.client.NewListBlobsFlatPager(options)
	var objects []ObjectInfo
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if resp.Segment == nil {
			continue
		}
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			info := ObjectInfo{Key: *item.Name}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					info.Size = *props.ContentLength
				}
				if props.LastModified != nil {
					info.LastModified = *props.LastModified
				}
				if props.ETag != nil {
					info.ETag = string(*props.ETag)
				}
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

func (p *azureProvider) Upload(ctx context.Context, key string, localPath string) (ObjectInfo, error) {
	remoteKey := ResolveKey(p.cfg.Prefix, key)
	file, err := os.Open(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return ObjectInfo{}, err
	}
	kind := contentType(localPath)
	resp, err := p.client.NewBlockBlobClient(remoteKey).UploadFile(ctx, file, &blockblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &kind},
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	info := ObjectInfo{Key: remoteKey, Size: stat.Size()}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	return info, nil
}

func (p *azureProvider) Close() error { return nil }
