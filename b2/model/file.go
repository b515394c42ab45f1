package model

import (
	"strconv"
	"time"
)

// File actions reported by the remote service.
const (
	ActionUpload = "upload"
	ActionStart  = "start"
	ActionHide   = "hide"
	ActionFolder = "folder"
)

// Well-known file info keys.
const (
	InfoLastModifiedMillis = "src_last_modified_millis"
	InfoLargeFileSHA1      = "large_file_sha1"
)

// FileRecord describes one stored file version as returned by the service.
type FileRecord struct {
	ID              string            `json:"fileId"`
	Name            string            `json:"fileName"`
	BucketID        string            `json:"bucketId"`
	AccountID       string            `json:"accountId,omitempty"`
	ContentType     string            `json:"contentType"`
	ContentLength   int64             `json:"contentLength"`
	ContentSHA1     string            `json:"contentSha1"`
	Action          string            `json:"action"`
	Info            map[string]string `json:"fileInfo,omitempty"`
	UploadTimestamp int64             `json:"uploadTimestamp"`
}

// Completed reports whether the file version is fully uploaded.
// Large files that were started but never finished report false.
func (f FileRecord) Completed() bool {
	return f.Action == ActionUpload
}

// IsFolder ...
func (f FileRecord) IsFolder() bool {
	return f.Action == ActionFolder || (len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/')
}

// UploadedAt ...
func (f FileRecord) UploadedAt() time.Time {
	return time.UnixMilli(f.UploadTimestamp)
}

// LastModified returns the source modification time recorded at upload,
// falling back to the upload time when the uploader did not record one.
func (f FileRecord) LastModified() time.Time {
	if raw, ok := f.Info[InfoLastModifiedMillis]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return f.UploadedAt()
}

// Digest returns the content SHA1 of the file. Large files carry it in their
// file info because the service stores "none" as their content digest.
func (f FileRecord) Digest() string {
	if f.ContentSHA1 != "" && f.ContentSHA1 != "none" {
		return f.ContentSHA1
	}
	return f.Info[InfoLargeFileSHA1]
}
