// Package bucketdir caches the account's bucket listing and resolves buckets
// by name or ID against it.
package bucketdir

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bitrise-io/go-b2/b2/kv"
	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-utils/v2/log"
	"golang.org/x/sync/singleflight"
)

const cacheKey = "b2:buckets"

// DefaultTTL ...
const DefaultTTL = 10 * time.Minute

// Lister fetches the complete bucket listing of the account.
type Lister interface {
	ListBuckets(ctx context.Context) ([]model.BucketRecord, error)
}

// Directory ...
type Directory struct {
	lister Lister
	store  kv.Store
	ttl    time.Duration
	logger log.Logger
	group  singleflight.Group

	mu         sync.Mutex
	generation uint64
}

// New ...
func New(lister Lister, store kv.Store, ttl time.Duration, logger log.Logger) *Directory {
	return &Directory{
		lister: lister,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// ListAll returns the cached listing, fetching it when the cache is empty or refresh is set.
func (d *Directory) ListAll(ctx context.Context, refresh bool) ([]model.BucketRecord, error) {
	if !refresh {
		if buckets, ok := d.cached(); ok {
			return buckets, nil
		}
	}

	d.mu.Lock()
	generation := d.generation
	d.mu.Unlock()

	ch := d.group.DoChan(strconv.FormatUint(generation, 10), func() (interface{}, error) {
		return d.refresh(context.WithoutCancel(ctx), generation)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.BucketRecord), nil
	}
}

// ByName scans the listing for a bucket called name.
func (d *Directory) ByName(ctx context.Context, name string) (model.BucketRecord, bool, error) {
	return d.find(ctx, func(b model.BucketRecord) bool { return b.Name == name })
}

// ByID scans the listing for the bucket with the given id.
func (d *Directory) ByID(ctx context.Context, id string) (model.BucketRecord, bool, error) {
	return d.find(ctx, func(b model.BucketRecord) bool { return b.ID == id })
}

// Invalidate drops the cached listing. A fetch already in flight still
// answers its callers but is not cached.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.generation++
	d.mu.Unlock()

	if err := d.store.Forget(cacheKey); err != nil {
		d.logger.Warnf("Failed to forget cached bucket listing: %s", err)
	}
}

func (d *Directory) find(ctx context.Context, match func(model.BucketRecord) bool) (model.BucketRecord, bool, error) {
	buckets, err := d.ListAll(ctx, false)
	if err != nil {
		return model.BucketRecord{}, false, err
	}
	for _, bucket := range buckets {
		if match(bucket) {
			return bucket, true, nil
		}
	}
	return model.BucketRecord{}, false, nil
}

func (d *Directory) cached() ([]model.BucketRecord, bool) {
	data, ok, err := d.store.Get(cacheKey)
	if err != nil {
		d.logger.Warnf("Failed to read cached bucket listing: %s", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var buckets []model.BucketRecord
	if err := json.Unmarshal(data, &buckets); err != nil {
		d.logger.Warnf("Ignoring malformed cached bucket listing: %s", err)
		return nil, false
	}
	return buckets, true
}

func (d *Directory) refresh(ctx context.Context, generation uint64) ([]model.BucketRecord, error) {
	buckets, err := d.lister.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	if buckets == nil {
		buckets = []model.BucketRecord{}
	}
	d.logger.Debugf("Fetched %d buckets", len(buckets))

	data, err := json.Marshal(buckets)
	if err != nil {
		return nil, fmt.Errorf("encode bucket listing: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if generation != d.generation {
		return buckets, nil
	}
	if err := d.store.Set(cacheKey, data, d.ttl); err != nil {
		d.logger.Warnf("Failed to cache bucket listing: %s", err)
	}
	return buckets, nil
}
