package b2

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bitrise-io/go-b2/b2/model"
)

const (
	testAccountID = "acc-1"
	testAppKey    = "app-key"
)

type storedFile struct {
	record  model.FileRecord
	content []byte
}

type largeFile struct {
	record model.FileRecord
	parts  map[int][]byte
}

// fakeB2 is an in-memory stand-in for the B2 native API, enough for the
// client's end to end behaviour.
type fakeB2 struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	partSize     int64
	calls        map[string]int
	tokens       int
	rejectTokens int
	overloaded   map[string]int
	failures     map[string]int
	buckets      []model.BucketRecord
	files        map[string]*storedFile
	large        map[string]*largeFile
	nextID       int
	prefixes     []string
}

func newFakeB2(t *testing.T) *fakeB2 {
	f := &fakeB2{
		t:          t,
		partSize:   100,
		calls:      map[string]int{},
		overloaded: map[string]int{},
		failures:   map[string]int{},
		files:      map[string]*storedFile{},
		large:      map[string]*largeFile{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeB2) config() Config {
	config := DefaultConfig()
	config.AccountID = testAccountID
	config.ApplicationKey = testAppKey
	config.APIURL = f.srv.URL
	config.RetryWait = time.Millisecond
	config.RetryMaxWait = time.Millisecond
	return config
}

func (f *fakeB2) addBucket(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, model.BucketRecord{ID: id, Name: name, AccountID: testAccountID, Type: model.BucketTypeAllPrivate, Revision: 1})
}

func (f *fakeB2) addFile(bucketID, name, content string) model.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store(bucketID, name, "text/plain", []byte(content), nil)
}

func (f *fakeB2) callCount(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[operation]
}

func (f *fakeB2) content(fileID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fileID]
	if !ok {
		return nil, false
	}
	return file.content, true
}

func (f *fakeB2) store(bucketID, name, contentType string, content []byte, info map[string]string) model.FileRecord {
	f.nextID++
	sum := sha1.Sum(content)
	record := model.FileRecord{
		ID:              fmt.Sprintf("4_z%04d", f.nextID),
		Name:            name,
		BucketID:        bucketID,
		AccountID:       testAccountID,
		ContentType:     contentType,
		ContentLength:   int64(len(content)),
		ContentSHA1:     hex.EncodeToString(sum[:]),
		Action:          model.ActionUpload,
		Info:            info,
		UploadTimestamp: 1700000000000 + int64(f.nextID),
	}
	f.files[record.ID] = &storedFile{record: record, content: content}
	return record
}

func (f *fakeB2) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/b2api/v1/"):
		operation := strings.TrimPrefix(r.URL.Path, "/b2api/v1/")
		f.calls[operation]++
		f.api(w, r, operation)
	case strings.HasPrefix(r.URL.Path, "/upload_part/"):
		f.calls["upload_part"]++
		f.uploadPart(w, r, strings.TrimPrefix(r.URL.Path, "/upload_part/"))
	case strings.HasPrefix(r.URL.Path, "/upload/"):
		f.calls["upload_file"]++
		f.uploadFile(w, r, strings.TrimPrefix(r.URL.Path, "/upload/"))
	default:
		f.fail(w, http.StatusNotFound, "not_found", "unknown path "+r.URL.Path)
	}
}

func (f *fakeB2) api(w http.ResponseWriter, r *http.Request, operation string) {
	if operation == "b2_authorize_account" {
		f.authorize(w, r)
		return
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "token-") {
		f.fail(w, http.StatusUnauthorized, "bad_auth_token", "missing token")
		return
	}
	if f.rejectTokens > 0 {
		f.rejectTokens--
		f.fail(w, http.StatusUnauthorized, "expired_auth_token", "authorization token is expired")
		return
	}
	if f.overloaded[operation] > 0 {
		f.overloaded[operation]--
		f.fail(w, http.StatusServiceUnavailable, "service_unavailable", "too busy")
		return
	}
	if f.failures[operation] > 0 {
		f.failures[operation]--
		f.fail(w, http.StatusBadRequest, "bad_request", operation+" rejected")
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		f.fail(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}

	switch operation {
	case "b2_list_buckets":
		f.reply(w, map[string]interface{}{"buckets": f.buckets})
	case "b2_create_bucket":
		f.nextID++
		bucket := model.BucketRecord{ID: fmt.Sprintf("bkt-%d", f.nextID), Name: str("bucketName"), AccountID: str("accountId"), Type: model.BucketType(str("bucketType")), Revision: 1}
		f.buckets = append(f.buckets, bucket)
		f.reply(w, bucket)
	case "b2_update_bucket":
		for i, bucket := range f.buckets {
			if bucket.ID == str("bucketId") {
				if bucketType := str("bucketType"); bucketType != "" {
					f.buckets[i].Type = model.BucketType(bucketType)
				}
				f.buckets[i].Revision++
				f.reply(w, f.buckets[i])
				return
			}
		}
		f.fail(w, http.StatusBadRequest, "bad_request", "no such bucket")
	case "b2_delete_bucket":
		for i, bucket := range f.buckets {
			if bucket.ID == str("bucketId") {
				f.buckets = append(f.buckets[:i], f.buckets[i+1:]...)
				f.reply(w, bucket)
				return
			}
		}
		f.fail(w, http.StatusBadRequest, "bad_request", "no such bucket")
	case "b2_get_upload_url":
		f.reply(w, map[string]string{"bucketId": str("bucketId"), "uploadUrl": f.srv.URL + "/upload/" + str("bucketId"), "authorizationToken": "upload-token"})
	case "b2_start_large_file":
		f.nextID++
		info := map[string]string{}
		if raw, ok := payload["fileInfo"].(map[string]interface{}); ok {
			for key, value := range raw {
				info[key], _ = value.(string)
			}
		}
		record := model.FileRecord{ID: fmt.Sprintf("4_zlarge%d", f.nextID), Name: str("fileName"), BucketID: str("bucketId"), ContentType: str("contentType"), Action: model.ActionStart, Info: info}
		f.large[record.ID] = &largeFile{record: record, parts: map[int][]byte{}}
		f.reply(w, record)
	case "b2_get_upload_part_url":
		f.reply(w, map[string]string{"fileId": str("fileId"), "uploadUrl": f.srv.URL + "/upload_part/" + str("fileId"), "authorizationToken": "part-token"})
	case "b2_finish_large_file":
		f.finishLargeFile(w, str("fileId"), payload["partSha1Array"])
	case "b2_list_file_names":
		f.listFileNames(w, payload)
	case "b2_get_file_info":
		file, ok := f.files[str("fileId")]
		if !ok {
			f.fail(w, http.StatusNotFound, "not_found", "file not present: "+str("fileId"))
			return
		}
		f.reply(w, file.record)
	case "b2_delete_file_version":
		file, ok := f.files[str("fileId")]
		if !ok || file.record.Name != str("fileName") {
			f.fail(w, http.StatusBadRequest, "file_not_present", "file not present: "+str("fileName"))
			return
		}
		delete(f.files, str("fileId"))
		f.reply(w, map[string]string{"fileId": file.record.ID, "fileName": file.record.Name})
	case "b2_get_download_authorization":
		f.prefixes = append(f.prefixes, str("fileNamePrefix"))
		f.reply(w, map[string]interface{}{"bucketId": str("bucketId"), "fileNamePrefix": str("fileNamePrefix"), "authorizationToken": "download token"})
	default:
		f.fail(w, http.StatusBadRequest, "bad_request", "unknown operation "+operation)
	}
}

func (f *fakeB2) authorize(w http.ResponseWriter, r *http.Request) {
	keyID, key, ok := r.BasicAuth()
	if !ok || keyID != testAccountID || key != testAppKey {
		f.fail(w, http.StatusUnauthorized, "unauthorized", "invalid application key")
		return
	}
	f.tokens++
	f.reply(w, map[string]interface{}{
		"accountId":               testAccountID,
		"authorizationToken":      fmt.Sprintf("token-%d", f.tokens),
		"apiUrl":                  f.srv.URL,
		"downloadUrl":             f.srv.URL,
		"recommendedPartSize":     f.partSize,
		"absoluteMinimumPartSize": 5,
	})
}

func (f *fakeB2) uploadFile(w http.ResponseWriter, r *http.Request, bucketID string) {
	content, err := io.ReadAll(r.Body)
	if err != nil {
		f.fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if r.Header.Get("Authorization") != "upload-token" {
		f.fail(w, http.StatusUnauthorized, "bad_auth_token", "wrong upload token")
		return
	}
	sum := sha1.Sum(content)
	if r.Header.Get("X-Bz-Content-Sha1") != hex.EncodeToString(sum[:]) {
		f.fail(w, http.StatusBadRequest, "bad_request", "sha1 did not match data received")
		return
	}
	name, err := url.PathUnescape(r.Header.Get("X-Bz-File-Name"))
	if err != nil {
		f.fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	info := map[string]string{model.InfoLastModifiedMillis: r.Header.Get("X-Bz-Info-src_last_modified_millis")}
	f.reply(w, f.store(bucketID, name, r.Header.Get("Content-Type"), content, info))
}

func (f *fakeB2) uploadPart(w http.ResponseWriter, r *http.Request, fileID string) {
	file, ok := f.large[fileID]
	if !ok {
		f.fail(w, http.StatusBadRequest, "bad_request", "no such large file")
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		f.fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	number, err := strconv.Atoi(r.Header.Get("X-Bz-Part-Number"))
	if err != nil {
		f.fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sum := sha1.Sum(content)
	digest := hex.EncodeToString(sum[:])
	if r.Header.Get("X-Bz-Content-Sha1") != digest {
		f.fail(w, http.StatusBadRequest, "bad_request", "sha1 did not match data received")
		return
	}
	file.parts[number] = content
	f.reply(w, map[string]interface{}{"fileId": fileID, "partNumber": number, "contentLength": len(content), "contentSha1": digest})
}

func (f *fakeB2) finishLargeFile(w http.ResponseWriter, fileID string, rawDigests interface{}) {
	file, ok := f.large[fileID]
	if !ok {
		f.fail(w, http.StatusBadRequest, "bad_request", "no such large file")
		return
	}
	digests, _ := rawDigests.([]interface{})
	if len(digests) != len(file.parts) {
		f.fail(w, http.StatusBadRequest, "bad_request", "part count mismatch")
		return
	}

	var content bytes.Buffer
	for i, digest := range digests {
		part := file.parts[i+1]
		sum := sha1.Sum(part)
		if digest != hex.EncodeToString(sum[:]) {
			f.fail(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("part %d digest mismatch", i+1))
			return
		}
		content.Write(part)
	}
	delete(f.large, fileID)

	record := file.record
	record.Action = model.ActionUpload
	record.ContentLength = int64(content.Len())
	record.ContentSHA1 = "none"
	f.files[record.ID] = &storedFile{record: record, content: content.Bytes()}
	f.reply(w, record)
}

func (f *fakeB2) listFileNames(w http.ResponseWriter, payload map[string]interface{}) {
	bucketID, _ := payload["bucketId"].(string)
	start, _ := payload["startFileName"].(string)
	prefix, _ := payload["prefix"].(string)
	delimiter, _ := payload["delimiter"].(string)
	maxCount := 100
	if raw, ok := payload["maxFileCount"].(float64); ok {
		maxCount = int(raw)
	}

	var names []model.FileRecord
	seenFolders := map[string]bool{}
	for _, file := range f.files {
		record := file.record
		if record.BucketID != bucketID || !strings.HasPrefix(record.Name, prefix) {
			continue
		}
		if delimiter != "" {
			rest := strings.TrimPrefix(record.Name, prefix)
			if i := strings.Index(rest, delimiter); i >= 0 {
				folder := prefix + rest[:i+len(delimiter)]
				if !seenFolders[folder] {
					seenFolders[folder] = true
					names = append(names, model.FileRecord{Name: folder, Action: model.ActionFolder})
				}
				continue
			}
		}
		names = append(names, record)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })

	page := []model.FileRecord{}
	var next interface{}
	for _, record := range names {
		if record.Name < start {
			continue
		}
		if len(page) == maxCount {
			next = record.Name
			break
		}
		page = append(page, record)
	}
	f.reply(w, map[string]interface{}{"files": page, "nextFileName": next})
}

func (f *fakeB2) reply(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encode response: %s", err)
	}
}

func (f *fakeB2) fail(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": status, "code": code, "message": message})
}
