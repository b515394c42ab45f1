package b2

import (
	"context"
	"os"
	"time"

	"github.com/bitrise-io/go-b2/b2/hashing"
	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-b2/b2/upload"
)

// UploadParams ...
type UploadParams struct {
	Bucket BucketRef
	// Name is the stored file name; a leading slash is dropped.
	Name string
	// ContentType defaults to "b2/x-auto", letting the service guess it
	// from the name.
	ContentType  string
	LastModified time.Time
	Info         map[string]string
	Source       hashing.Source
}

// Upload stores a file. Payloads larger than the recommended part size (or the
// configured large file limit) are sent as a large file in parts.
func (c *Client) Upload(ctx context.Context, params UploadParams) (model.FileRecord, error) {
	if params.Source == nil {
		return model.FileRecord{}, model.NewValidationError("Source", "is required")
	}

	bucketID, err := c.bucketID(ctx, params.Bucket)
	if err != nil {
		return model.FileRecord{}, err
	}

	return c.uploader.Upload(ctx, upload.Request{
		BucketID:     bucketID,
		Name:         params.Name,
		ContentType:  params.ContentType,
		LastModified: params.LastModified,
		Info:         params.Info,
		Source:       params.Source,
	})
}

// UploadFile opens the file at pth and uploads it under name.
func (c *Client) UploadFile(ctx context.Context, bucket BucketRef, name, pth string) (model.FileRecord, error) {
	src, err := hashing.OpenFileSource(pth)
	if err != nil {
		return model.FileRecord{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			c.logger.Warnf("Failed to close %s: %s", pth, err)
		}
	}()

	params := UploadParams{Bucket: bucket, Name: name, Source: src}
	if info, err := os.Stat(pth); err == nil {
		params.LastModified = info.ModTime()
	}
	return c.Upload(ctx, params)
}
