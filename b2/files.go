package b2

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-b2/b2/network"
	"github.com/bitrise-io/go-b2/b2/transport"
	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPageSize is the number of file names requested per listing call.
const DefaultPageSize = network.MaxFileCount

// ListFilesParams ...
type ListFilesParams struct {
	Bucket BucketRef
	// Prefix limits the listing to names starting with it.
	Prefix string
	// Delimiter groups names into virtual folders, which are left out of
	// the result.
	Delimiter     string
	StartFileName string
	// PageSize defaults to DefaultPageSize.
	PageSize int
	// Pattern is a doublestar glob (e.g. "logs/**/*.gz") names must match.
	Pattern string
}

// ListFiles returns every file name in a bucket, following the listing pages
// to the end.
func (c *Client) ListFiles(ctx context.Context, params ListFilesParams) ([]model.FileRecord, error) {
	if params.Pattern != "" && !doublestar.ValidatePattern(params.Pattern) {
		return nil, model.NewValidationError("Pattern", "is not a valid glob: %q", params.Pattern)
	}
	bucketID, err := c.bucketID(ctx, params.Bucket)
	if err != nil {
		return nil, err
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	files := []model.FileRecord{}
	next := params.StartFileName
	for {
		page, err := c.api.ListFileNames(ctx, network.ListFileNamesParams{
			BucketID:      bucketID,
			StartFileName: next,
			MaxFileCount:  pageSize,
			Prefix:        params.Prefix,
			Delimiter:     params.Delimiter,
		})
		if err != nil {
			return nil, err
		}

		for _, file := range page.Files {
			if file.IsFolder() {
				continue
			}
			if params.Pattern != "" {
				if ok, _ := doublestar.Match(params.Pattern, file.Name); !ok {
					continue
				}
			}
			files = append(files, file)
		}

		if !page.More() {
			return files, nil
		}
		next = *page.NextFileName
	}
}

// GetFile returns the metadata of a file version, or a *model.NotFoundError.
func (c *Client) GetFile(ctx context.Context, ref FileRef) (model.FileRecord, error) {
	switch ref := ref.(type) {
	case FileByID:
		return c.fileInfo(ctx, string(ref))
	case FileVersion:
		return c.fileInfo(ctx, ref.ID)
	case FileByName:
		return c.findByName(ctx, ref.Bucket, ref.Name)
	default:
		return model.FileRecord{}, model.NewValidationError("File", "is required")
	}
}

// FileExists ...
func (c *Client) FileExists(ctx context.Context, ref FileRef) (bool, error) {
	_, err := c.GetFile(ctx, ref)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteFile deletes one file version. The missing half of the version
// (name or ID) is looked up first.
func (c *Client) DeleteFile(ctx context.Context, ref FileRef) error {
	var version FileVersion
	switch ref := ref.(type) {
	case FileVersion:
		version = ref
	case FileByID, FileByName:
		file, err := c.GetFile(ctx, ref)
		if err != nil {
			return err
		}
		version = FileVersion{ID: file.ID, Name: file.Name}
	default:
		return model.NewValidationError("File", "is required")
	}

	if version.ID == "" || version.Name == "" {
		return model.NewValidationError("File", "needs both a name and an id")
	}

	if err := c.api.DeleteFileVersion(ctx, version.Name, version.ID); err != nil {
		return err
	}

	c.logger.Debugf("Deleted %s (%s)", version.Name, version.ID)
	return nil
}

func (c *Client) fileInfo(ctx context.Context, fileID string) (model.FileRecord, error) {
	file, err := c.api.GetFileInfo(ctx, fileID)
	if transport.IsStatus(err, http.StatusNotFound) {
		return model.FileRecord{}, &model.NotFoundError{Kind: "file", Key: fileID}
	}
	return file, err
}

func (c *Client) findByName(ctx context.Context, bucket BucketRef, name string) (model.FileRecord, error) {
	if name == "" {
		return model.FileRecord{}, model.NewValidationError("Name", "is required")
	}

	bucketID, err := c.bucketID(ctx, bucket)
	if err != nil {
		return model.FileRecord{}, err
	}

	page, err := c.api.ListFileNames(ctx, network.ListFileNamesParams{
		BucketID:      bucketID,
		StartFileName: name,
		MaxFileCount:  1,
	})
	if err != nil {
		return model.FileRecord{}, err
	}
	if len(page.Files) == 0 || page.Files[0].Name != name {
		return model.FileRecord{}, &model.NotFoundError{Kind: "file", Key: fmt.Sprintf("%s/%s", bucketID, name)}
	}
	return page.Files[0], nil
}
