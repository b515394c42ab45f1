package b2

import (
	"context"
	"encoding/json"

	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-b2/b2/network"
)

// CreateBucketParams ...
type CreateBucketParams struct {
	Name           string
	Type           model.BucketType
	Info           map[string]string
	CORSRules      json.RawMessage
	LifecycleRules json.RawMessage
}

// UpdateBucketParams ...
type UpdateBucketParams struct {
	Bucket         BucketRef
	Type           model.BucketType `validate:"omitempty,oneof=allPublic allPrivate"`
	Info           map[string]string
	CORSRules      json.RawMessage
	LifecycleRules json.RawMessage
	IfRevisionIs   int
}

// CreateBucket ...
func (c *Client) CreateBucket(ctx context.Context, params CreateBucketParams) (model.BucketRecord, error) {
	bucket, err := c.api.CreateBucket(ctx, network.CreateBucketParams{
		Name:           params.Name,
		Type:           params.Type,
		Info:           params.Info,
		CORSRules:      params.CORSRules,
		LifecycleRules: params.LifecycleRules,
	})
	if err != nil {
		return model.BucketRecord{}, err
	}

	c.buckets.Invalidate()
	c.logger.Donef("Bucket %s created (%s)", bucket.Name, bucket.ID)
	return bucket, nil
}

// UpdateBucket ...
func (c *Client) UpdateBucket(ctx context.Context, params UpdateBucketParams) (model.BucketRecord, error) {
	if err := model.Validate(params); err != nil {
		return model.BucketRecord{}, err
	}
	bucketID, err := c.bucketID(ctx, params.Bucket)
	if err != nil {
		return model.BucketRecord{}, err
	}

	bucket, err := c.api.UpdateBucket(ctx, network.UpdateBucketParams{
		BucketID:       bucketID,
		Type:           params.Type,
		Info:           params.Info,
		CORSRules:      params.CORSRules,
		LifecycleRules: params.LifecycleRules,
		IfRevisionIs:   params.IfRevisionIs,
	})
	if err != nil {
		return model.BucketRecord{}, err
	}

	c.buckets.Invalidate()
	return bucket, nil
}

// ListBuckets returns the cached bucket listing; refresh fetches it again.
func (c *Client) ListBuckets(ctx context.Context, refresh bool) ([]model.BucketRecord, error) {
	return c.buckets.ListAll(ctx, refresh)
}

// GetBucket returns a *model.NotFoundError when the bucket does not exist.
func (c *Client) GetBucket(ctx context.Context, ref BucketRef) (model.BucketRecord, error) {
	return c.lookupBucket(ctx, ref)
}

// DeleteBucket ...
func (c *Client) DeleteBucket(ctx context.Context, ref BucketRef) error {
	bucketID, err := c.bucketID(ctx, ref)
	if err != nil {
		return err
	}

	if _, err := c.api.DeleteBucket(ctx, bucketID); err != nil {
		return err
	}

	c.buckets.Invalidate()
	return nil
}

// BucketIDFromName ...
func (c *Client) BucketIDFromName(ctx context.Context, name string) (string, error) {
	bucket, err := c.lookupBucket(ctx, BucketByName(name))
	if err != nil {
		return "", err
	}
	return bucket.ID, nil
}

// BucketNameFromID ...
func (c *Client) BucketNameFromID(ctx context.Context, id string) (string, error) {
	bucket, err := c.lookupBucket(ctx, BucketByID(id))
	if err != nil {
		return "", err
	}
	return bucket.Name, nil
}
