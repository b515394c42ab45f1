package network

import (
	"context"
	"encoding/json"

	"github.com/bitrise-io/go-b2/b2/model"
)

// CreateBucketParams ...
type CreateBucketParams struct {
	Name           string           `validate:"required"`
	Type           model.BucketType `validate:"oneof=allPublic allPrivate"`
	Info           map[string]string
	CORSRules      json.RawMessage
	LifecycleRules json.RawMessage
}

// UpdateBucketParams ...
type UpdateBucketParams struct {
	BucketID       string           `validate:"required"`
	Type           model.BucketType `validate:"omitempty,oneof=allPublic allPrivate"`
	Info           map[string]string
	CORSRules      json.RawMessage
	LifecycleRules json.RawMessage
	// IfRevisionIs makes the update conditional on the current bucket revision.
	IfRevisionIs int
}

type createBucketRequest struct {
	AccountID      string            `json:"accountId"`
	BucketName     string            `json:"bucketName"`
	BucketType     model.BucketType  `json:"bucketType"`
	BucketInfo     map[string]string `json:"bucketInfo,omitempty"`
	CORSRules      json.RawMessage   `json:"corsRules,omitempty"`
	LifecycleRules json.RawMessage   `json:"lifecycleRules,omitempty"`
}

type updateBucketRequest struct {
	AccountID      string            `json:"accountId"`
	BucketID       string            `json:"bucketId"`
	BucketType     model.BucketType  `json:"bucketType,omitempty"`
	BucketInfo     map[string]string `json:"bucketInfo,omitempty"`
	CORSRules      json.RawMessage   `json:"corsRules,omitempty"`
	LifecycleRules json.RawMessage   `json:"lifecycleRules,omitempty"`
	IfRevisionIs   int               `json:"ifRevisionIs,omitempty"`
}

type accountRequest struct {
	AccountID string `json:"accountId"`
}

type bucketRequest struct {
	AccountID string `json:"accountId"`
	BucketID  string `json:"bucketId"`
}

type listBucketsResponse struct {
	Buckets []model.BucketRecord `json:"buckets"`
}

// CreateBucket ...
func (a *API) CreateBucket(ctx context.Context, params CreateBucketParams) (model.BucketRecord, error) {
	if err := model.Validate(params); err != nil {
		return model.BucketRecord{}, err
	}
	accountID, err := a.accountID(ctx)
	if err != nil {
		return model.BucketRecord{}, err
	}

	var bucket model.BucketRecord
	err = a.call(ctx, "b2_create_bucket", createBucketRequest{
		AccountID:      accountID,
		BucketName:     params.Name,
		BucketType:     params.Type,
		BucketInfo:     params.Info,
		CORSRules:      params.CORSRules,
		LifecycleRules: params.LifecycleRules,
	}, &bucket)
	return bucket, err
}

// UpdateBucket ...
func (a *API) UpdateBucket(ctx context.Context, params UpdateBucketParams) (model.BucketRecord, error) {
	if err := model.Validate(params); err != nil {
		return model.BucketRecord{}, err
	}
	accountID, err := a.accountID(ctx)
	if err != nil {
		return model.BucketRecord{}, err
	}

	var bucket model.BucketRecord
	err = a.call(ctx, "b2_update_bucket", updateBucketRequest{
		AccountID:      accountID,
		BucketID:       params.BucketID,
		BucketType:     params.Type,
		BucketInfo:     params.Info,
		CORSRules:      params.CORSRules,
		LifecycleRules: params.LifecycleRules,
		IfRevisionIs:   params.IfRevisionIs,
	}, &bucket)
	return bucket, err
}

// ListBuckets returns every bucket of the account.
func (a *API) ListBuckets(ctx context.Context) ([]model.BucketRecord, error) {
	accountID, err := a.accountID(ctx)
	if err != nil {
		return nil, err
	}

	var resp listBucketsResponse
	if err := a.call(ctx, "b2_list_buckets", accountRequest{AccountID: accountID}, &resp); err != nil {
		return nil, err
	}
	return resp.Buckets, nil
}

// DeleteBucket deletes an empty bucket and returns its last state.
func (a *API) DeleteBucket(ctx context.Context, bucketID string) (model.BucketRecord, error) {
	if bucketID == "" {
		return model.BucketRecord{}, model.NewValidationError("BucketID", "is required")
	}
	accountID, err := a.accountID(ctx)
	if err != nil {
		return model.BucketRecord{}, err
	}

	var bucket model.BucketRecord
	err = a.call(ctx, "b2_delete_bucket", bucketRequest{AccountID: accountID, BucketID: bucketID}, &bucket)
	return bucket, err
}
