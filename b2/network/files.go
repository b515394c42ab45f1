package network

import (
	"context"
	"time"

	"github.com/bitrise-io/go-b2/b2/model"
)

// MaxFileCount is the largest page the service returns from a file listing.
const MaxFileCount = 1000

// ListFileNamesParams ...
type ListFileNamesParams struct {
	BucketID      string `json:"bucketId" validate:"required"`
	StartFileName string `json:"startFileName,omitempty"`
	MaxFileCount  int    `json:"maxFileCount,omitempty" validate:"gte=0,lte=10000"`
	Prefix        string `json:"prefix,omitempty"`
	Delimiter     string `json:"delimiter,omitempty"`
}

// FileNamesPage is one page of a file listing. NextFileName is empty on the last page.
type FileNamesPage struct {
	Files        []model.FileRecord `json:"files"`
	NextFileName *string            `json:"nextFileName"`
}

// More ...
func (p FileNamesPage) More() bool {
	return p.NextFileName != nil && *p.NextFileName != ""
}

// DownloadAuthorization is a token granting access to files under a name prefix.
type DownloadAuthorization struct {
	BucketID       string `json:"bucketId"`
	FileNamePrefix string `json:"fileNamePrefix"`
	Token          string `json:"authorizationToken"`
}

type fileRequest struct {
	FileID string `json:"fileId"`
}

type deleteFileVersionRequest struct {
	FileName string `json:"fileName"`
	FileID   string `json:"fileId"`
}

type downloadAuthorizationRequest struct {
	BucketID               string `json:"bucketId"`
	FileNamePrefix         string `json:"fileNamePrefix"`
	ValidDurationInSeconds int64  `json:"validDurationInSeconds"`
}

// ListFileNames fetches one page of file names in ascending order.
func (a *API) ListFileNames(ctx context.Context, params ListFileNamesParams) (FileNamesPage, error) {
	if err := model.Validate(params); err != nil {
		return FileNamesPage{}, err
	}

	var page FileNamesPage
	err := a.call(ctx, "b2_list_file_names", params, &page)
	return page, err
}

// GetFileInfo ...
func (a *API) GetFileInfo(ctx context.Context, fileID string) (model.FileRecord, error) {
	if fileID == "" {
		return model.FileRecord{}, model.NewValidationError("FileID", "is required")
	}

	var file model.FileRecord
	err := a.call(ctx, "b2_get_file_info", fileRequest{FileID: fileID}, &file)
	return file, err
}

// DeleteFileVersion ...
func (a *API) DeleteFileVersion(ctx context.Context, fileName, fileID string) error {
	if fileName == "" {
		return model.NewValidationError("FileName", "is required")
	}
	if fileID == "" {
		return model.NewValidationError("FileID", "is required")
	}

	return a.call(ctx, "b2_delete_file_version", deleteFileVersionRequest{FileName: fileName, FileID: fileID}, nil)
}

// GetDownloadAuthorization issues a download token for files in bucketID whose
// names start with prefix.
func (a *API) GetDownloadAuthorization(ctx context.Context, bucketID, prefix string, valid time.Duration) (DownloadAuthorization, error) {
	if bucketID == "" {
		return DownloadAuthorization{}, model.NewValidationError("BucketID", "is required")
	}
	seconds := int64(valid / time.Second)
	if seconds < 1 {
		return DownloadAuthorization{}, model.NewValidationError("ValidDuration", "must be at least one second")
	}

	var resp DownloadAuthorization
	err := a.call(ctx, "b2_get_download_authorization", downloadAuthorizationRequest{
		BucketID:               bucketID,
		FileNamePrefix:         prefix,
		ValidDurationInSeconds: seconds,
	}, &resp)
	return resp, err
}
