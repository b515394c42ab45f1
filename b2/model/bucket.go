package model

import (
	"encoding/json"
	"fmt"
)

// BucketType is the visibility of a bucket.
type BucketType string

// Bucket types accepted by create and update calls.
const (
	BucketTypeAllPublic  BucketType = "allPublic"
	BucketTypeAllPrivate BucketType = "allPrivate"
)

// BucketRecord describes a bucket. Policy fields (CORS rules, lifecycle rules,
// bucket info, file lock and encryption settings) are kept verbatim in
// Attributes and round-trip unchanged through MarshalJSON.
type BucketRecord struct {
	ID         string
	Name       string
	AccountID  string
	Type       BucketType
	Revision   int
	Attributes map[string]json.RawMessage
}

var bucketKnownKeys = []string{"bucketId", "bucketName", "accountId", "bucketType", "revision"}

// UnmarshalJSON ...
func (b *BucketRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out BucketRecord
	fields := map[string]interface{}{
		"bucketId":   &out.ID,
		"bucketName": &out.Name,
		"accountId":  &out.AccountID,
		"bucketType": &out.Type,
		"revision":   &out.Revision,
	}
	for key, dst := range fields {
		value, ok := raw[key]
		if !ok {
			continue
		}
		delete(raw, key)
		if string(value) == "null" {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return fmt.Errorf("decode bucket %s: %w", key, err)
		}
	}

	if len(raw) > 0 {
		out.Attributes = raw
	}
	*b = out
	return nil
}

// MarshalJSON ...
func (b BucketRecord) MarshalJSON() ([]byte, error) {
	raw := make(map[string]interface{}, len(b.Attributes)+len(bucketKnownKeys))
	for key, value := range b.Attributes {
		raw[key] = value
	}
	raw["bucketId"] = b.ID
	raw["bucketName"] = b.Name
	raw["bucketType"] = b.Type
	raw["revision"] = b.Revision
	if b.AccountID != "" {
		raw["accountId"] = b.AccountID
	}
	return json.Marshal(raw)
}

// Attribute returns a raw policy attribute, or nil when the bucket has none.
func (b BucketRecord) Attribute(name string) json.RawMessage {
	return b.Attributes[name]
}

// CORSRules ...
func (b BucketRecord) CORSRules() json.RawMessage {
	return b.Attribute("corsRules")
}

// LifecycleRules ...
func (b BucketRecord) LifecycleRules() json.RawMessage {
	return b.Attribute("lifecycleRules")
}
