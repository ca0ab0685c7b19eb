package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// CSVContentType is the content type of mirrored datasets.
const CSVContentType = "text/csv; charset=utf-8"

// GCSProvider implements Provider for Google Cloud Storage.
type GCSProvider struct {
	client *storage.Client
	bucket string
}

// NewGCSProvider connects with Application Default Credentials and checks that
// the bucket is reachable, so a bad bucket fails before the crawl starts.
func NewGCSProvider(ctx context.Context, bucket string) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	p, err := NewGCSProviderWithClient(client, bucket)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}
	return p, nil
}

// NewGCSProviderWithClient wraps an existing client.
func NewGCSProviderWithClient(client *storage.Client, bucket string) (*GCSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSProvider{client: client, bucket: bucket}, nil
}

// Save uploads data as a CSV object.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = CSVContentType

	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			return fmt.Errorf("write GCS object %s: %w (close writer: %v)", objectName, err, closeErr)
		}
		return fmt.Errorf("write GCS object %s: %w", objectName, err)
	}
	// Close finalizes the upload.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %s: %w", objectName, err)
	}
	return nil
}

// URI returns the gs:// location of objectName.
func (g *GCSProvider) URI(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName)
}

// Close releases the client.
func (g *GCSProvider) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
