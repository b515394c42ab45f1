// Package b2 is a client for the Backblaze B2 native API: bucket management,
// uploads with automatic multipart handling, file listing and download URLs.
package b2

import (
	"context"

	"github.com/bitrise-io/go-b2/b2/auth"
	"github.com/bitrise-io/go-b2/b2/bucketdir"
	"github.com/bitrise-io/go-b2/b2/kv"
	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-b2/b2/network"
	"github.com/bitrise-io/go-b2/b2/network/partuploader"
	"github.com/bitrise-io/go-b2/b2/transport"
	"github.com/bitrise-io/go-b2/b2/upload"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Client ...
type Client struct {
	config   Config
	logger   log.Logger
	session  *auth.Session
	api      *network.API
	buckets  *bucketdir.Directory
	uploader *upload.Orchestrator
}

// New creates a client and authorizes the account right away, so invalid
// credentials fail here rather than on the first call.
func New(ctx context.Context, config Config, logger log.Logger) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	store, err := newStore(config, logger)
	if err != nil {
		return nil, err
	}

	httpSender := transport.NewDefaultHTTPSender(logger)
	sender := transport.NewRetrier(httpSender, transport.Policy{
		Limit:      config.RetryLimit,
		Wait:       config.RetryWait,
		Multiplier: transport.DefaultPolicy().Multiplier,
		MaxWait:    config.RetryMaxWait,
	}, logger)

	session := auth.NewSession(sender, store, auth.Credentials{
		AccountID:      config.AccountID,
		KeyID:          config.KeyID,
		ApplicationKey: config.ApplicationKey,
		APIURL:         config.APIURL,
		APIVersion:     config.APIVersion,
	}, config.AuthCacheTTL, logger)

	api := network.NewAPI(sender, session, logger)

	c := &Client{
		config:  config,
		logger:  logger,
		session: session,
		api:     api,
		buckets: bucketdir.New(api, store, config.BucketCacheTTL, logger),
		uploader: upload.NewOrchestrator(api, session, upload.Config{
			LargeFileLimit: config.LargeFileLimit,
			Uploader:       partuploader.Config{Concurrency: config.UploadConcurrency},
		}, logger),
	}

	if _, err := session.Get(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newStore(config Config, logger log.Logger) (kv.Store, error) {
	if config.CacheDir == "" {
		return kv.NewMemoryStore(), nil
	}
	return kv.NewFileStore(config.CacheDir, logger)
}

// bucketID returns the ID of ref, resolving names through the bucket listing.
// An unknown name is a precondition failure.
func (c *Client) bucketID(ctx context.Context, ref BucketRef) (string, error) {
	switch ref := ref.(type) {
	case BucketByID:
		if ref == "" {
			return "", model.NewValidationError("Bucket", "is required")
		}
		return string(ref), nil
	case BucketByName:
		bucket, err := c.lookupBucket(ctx, ref)
		if model.IsNotFound(err) {
			return "", model.NewValidationError("Bucket", "no bucket named %q", string(ref))
		}
		return bucket.ID, err
	default:
		return "", model.NewValidationError("Bucket", "is required")
	}
}

// bucketName returns the name of ref, resolving IDs through the bucket listing.
func (c *Client) bucketName(ctx context.Context, ref BucketRef) (string, error) {
	switch ref := ref.(type) {
	case BucketByName:
		if ref == "" {
			return "", model.NewValidationError("Bucket", "is required")
		}
		return string(ref), nil
	case BucketByID:
		bucket, err := c.lookupBucket(ctx, ref)
		if model.IsNotFound(err) {
			return "", model.NewValidationError("Bucket", "no bucket with id %q", string(ref))
		}
		return bucket.Name, err
	default:
		return "", model.NewValidationError("Bucket", "is required")
	}
}

// lookupBucket resolves ref against the cached listing and, on a miss, against
// a freshly fetched one to pick up buckets created elsewhere.
func (c *Client) lookupBucket(ctx context.Context, ref BucketRef) (model.BucketRecord, error) {
	var key string
	var find func(ctx context.Context, key string) (model.BucketRecord, bool, error)
	switch ref := ref.(type) {
	case BucketByID:
		key, find = string(ref), c.buckets.ByID
	case BucketByName:
		key, find = string(ref), c.buckets.ByName
	default:
		return model.BucketRecord{}, model.NewValidationError("Bucket", "is required")
	}
	if key == "" {
		return model.BucketRecord{}, model.NewValidationError("Bucket", "is required")
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if _, err := c.buckets.ListAll(ctx, true); err != nil {
				return model.BucketRecord{}, err
			}
		}
		bucket, ok, err := find(ctx, key)
		if err != nil {
			return model.BucketRecord{}, err
		}
		if ok {
			return bucket, nil
		}
	}
	return model.BucketRecord{}, &model.NotFoundError{Kind: "bucket", Key: key}
}
