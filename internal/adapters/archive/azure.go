package archive

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// BlobAPI is the subset of *azblob.Client used by the uploader.
type BlobAPI interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	URL() string
}

// AzureUploader stores blobs in an Azure Storage container.
type AzureUploader struct {
	client    BlobAPI
	container string
	baseURL   string
	log       logger.Logger
}

// NewAzure builds a blob client authenticated with a shared key.
func NewAzure(cfg Config, opts ...Option) (*AzureUploader, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" || cfg.Container == "" {
		return nil, fmt.Errorf("%w: account name, account key and container required for azure driver", ErrInvalidConfig)
	}
	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("%w: shared key credential: %w", ErrInvalidConfig, err)
	}
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: blob client: %w", ErrInvalidConfig, err)
	}
	return NewAzureWithClient(client, cfg, opts...)
}

// NewAzureWithClient wraps an existing client.
func NewAzureWithClient(client BlobAPI, cfg Config, opts ...Option) (*AzureUploader, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("%w: container required for azure driver", ErrInvalidConfig)
	}
	s := applyOptions(opts)
	base := cfg.PublicBaseURL
	if base == "" {
		base = joinURL(client.URL(), cfg.Container)
	}
	return &AzureUploader{
		client:    client,
		container: cfg.Container,
		baseURL:   base,
		log:       s.log,
	}, nil
}

// Upload implements Uploader.
func (u *AzureUploader) Upload(ctx context.Context, localPath, namespace string) (string, error) {
	start := time.Now()
	data, err := os.ReadFile(localPath)
	if err != nil {
		metrics.RecordUploadLatency(DriverAzure, "error", metrics.Since(start))
		return "", fmt.Errorf("%w: read artifact: %w", ErrUpload, err)
	}

	name := objectKey(namespace, localPath)
	ct := contentType(name)
	_, err = u.client.UploadBuffer(ctx, u.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
		Metadata:    map[string]*string{"namespace": &namespace},
	})
	if err != nil {
		metrics.RecordUploadLatency(DriverAzure, "error", metrics.Since(start))
		u.log.Error(ctx, "azure upload failed", logger.String("container", u.container), logger.String("blob", name), logger.Error(err))
		return "", fmt.Errorf("%w: upload %s: %w", ErrUpload, name, err)
	}
	metrics.RecordUploadLatency(DriverAzure, "ok", metrics.Since(start))

	link := joinURL(u.baseURL, name)
	u.log.Info(ctx, "archived image", logger.String("url", link), logger.Int("bytes", len(data)))
	return link, nil
}
