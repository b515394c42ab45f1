package network

import (
	"fmt"
	"net/url"

	"github.com/bitrise-io/go-b2/b2/auth"
)

// FileByNameURL returns the public URL of the latest version of a file.
func FileByNameURL(state auth.State, bucketName, fileName string) string {
	return fmt.Sprintf("%s/file/%s/%s", state.DownloadURL, bucketName, EscapeFileName(fileName))
}

// FileByIDURL returns the download URL of one exact file version.
func FileByIDURL(state auth.State, fileID string) string {
	return fmt.Sprintf("%s/b2api/v%d/b2_download_file_by_id?fileId=%s", state.DownloadURL, state.APIVersion, url.QueryEscape(fileID))
}
