package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-b2/b2/transport"
)

// UploadTarget is a one-time upload URL with its own authorization token.
type UploadTarget struct {
	URL   string `json:"uploadUrl"`
	Token string `json:"authorizationToken"`
}

// FileUpload is the content and metadata of a single-request upload.
type FileUpload struct {
	Name               string
	ContentType        string
	ContentSHA1        string
	LastModifiedMillis int64
	ContentLength      int64
	// Body returns a fresh reader over exactly ContentLength bytes.
	Body func() (io.Reader, error)
}

// LargeFileStart announces a multipart upload.
type LargeFileStart struct {
	BucketID    string            `json:"bucketId" validate:"required"`
	Name        string            `json:"fileName" validate:"required"`
	ContentType string            `json:"contentType" validate:"required"`
	Info        map[string]string `json:"fileInfo,omitempty"`
}

// PartUpload is one part of a multipart upload.
type PartUpload struct {
	Number      int
	ContentSHA1 string
	Data        []byte
}

// PartRecord is the service's acknowledgement of an uploaded part.
type PartRecord struct {
	FileID        string `json:"fileId"`
	Number        int    `json:"partNumber"`
	ContentLength int64  `json:"contentLength"`
	ContentSHA1   string `json:"contentSha1"`
}

type bucketIDRequest struct {
	BucketID string `json:"bucketId"`
}

type finishLargeFileRequest struct {
	FileID        string   `json:"fileId"`
	PartSHA1Array []string `json:"partSha1Array"`
}

// GetUploadURL ...
func (a *API) GetUploadURL(ctx context.Context, bucketID string) (UploadTarget, error) {
	if bucketID == "" {
		return UploadTarget{}, model.NewValidationError("BucketID", "is required")
	}

	var target UploadTarget
	err := a.call(ctx, "b2_get_upload_url", bucketIDRequest{BucketID: bucketID}, &target)
	return target, err
}

// UploadFile sends a whole file to target.
func (a *API) UploadFile(ctx context.Context, target UploadTarget, file FileUpload) (model.FileRecord, error) {
	header := http.Header{}
	header.Set("Authorization", target.Token)
	header.Set("Content-Type", file.ContentType)
	header.Set("X-Bz-File-Name", EscapeFileName(file.Name))
	header.Set("X-Bz-Content-Sha1", file.ContentSHA1)
	header.Set("X-Bz-Info-"+model.InfoLastModifiedMillis, strconv.FormatInt(file.LastModifiedMillis, 10))

	resp, err := a.sender.Send(ctx, transport.Request{
		Method:        http.MethodPost,
		URL:           target.URL,
		Header:        header,
		Body:          file.Body,
		ContentLength: file.ContentLength,
	})
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("upload file: %w", err)
	}

	var record model.FileRecord
	if err := resp.DecodeJSON(&record); err != nil {
		return model.FileRecord{}, fmt.Errorf("upload file: %w", err)
	}
	return record, nil
}

// StartLargeFile returns the unfinished file whose ID scopes the part uploads.
func (a *API) StartLargeFile(ctx context.Context, start LargeFileStart) (model.FileRecord, error) {
	if err := model.Validate(start); err != nil {
		return model.FileRecord{}, err
	}

	var record model.FileRecord
	err := a.call(ctx, "b2_start_large_file", start, &record)
	return record, err
}

// GetUploadPartURL ...
func (a *API) GetUploadPartURL(ctx context.Context, fileID string) (UploadTarget, error) {
	if fileID == "" {
		return UploadTarget{}, model.NewValidationError("FileID", "is required")
	}

	var target UploadTarget
	err := a.call(ctx, "b2_get_upload_part_url", fileRequest{FileID: fileID}, &target)
	return target, err
}

// UploadPart sends one part to target.
func (a *API) UploadPart(ctx context.Context, target UploadTarget, part PartUpload) (PartRecord, error) {
	header := http.Header{}
	header.Set("Authorization", target.Token)
	header.Set("X-Bz-Part-Number", strconv.Itoa(part.Number))
	header.Set("X-Bz-Content-Sha1", part.ContentSHA1)

	resp, err := a.sender.Send(ctx, transport.Request{
		Method:        http.MethodPost,
		URL:           target.URL,
		Header:        header,
		Body:          transport.BytesBody(part.Data),
		ContentLength: int64(len(part.Data)),
	})
	if err != nil {
		return PartRecord{}, fmt.Errorf("upload part %d: %w", part.Number, err)
	}

	var record PartRecord
	if err := resp.DecodeJSON(&record); err != nil {
		return PartRecord{}, fmt.Errorf("upload part %d: %w", part.Number, err)
	}
	if record.ContentSHA1 != "" && record.ContentSHA1 != part.ContentSHA1 {
		return PartRecord{}, fmt.Errorf("upload part %d: service stored digest %s, sent %s", part.Number, record.ContentSHA1, part.ContentSHA1)
	}
	return record, nil
}

// FinishLargeFile assembles the uploaded parts. digests must be in part number order.
func (a *API) FinishLargeFile(ctx context.Context, fileID string, digests []string) (model.FileRecord, error) {
	if fileID == "" {
		return model.FileRecord{}, model.NewValidationError("FileID", "is required")
	}

	var record model.FileRecord
	err := a.call(ctx, "b2_finish_large_file", finishLargeFileRequest{FileID: fileID, PartSHA1Array: digests}, &record)
	return record, err
}
