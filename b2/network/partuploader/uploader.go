package partuploader

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"golang.org/x/sync/errgroup"
)

// Uploader runs part transfers with bounded concurrency.
type Uploader struct {
	config Config
	logger log.Logger
	stats  *Stats
}

// New creates a new Uploader with the given configuration.
func New(config Config, logger log.Logger) *Uploader {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Uploader{
		config: config,
		logger: logger,
		stats:  NewStats(),
	}
}

// Upload transfers every part and returns their digests ordered by part
// number. The first failure cancels the remaining work; parts already
// accepted by the service are left in place.
func (u *Uploader) Upload(ctx context.Context, parts []Part, transfer TransferFunc) (*Result, error) {
	if err := checkSequence(parts); err != nil {
		return nil, err
	}

	digests := make([]string, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.config.Concurrency)

	for _, part := range parts {
		if gctx.Err() != nil {
			break
		}

		part := part
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			u.logger.Debugf("Uploading part %d/%d [finished=%d] [avg=%v]",
				part.Number, len(parts), u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond))

			start := time.Now()
			digest, err := transfer(gctx, part)
			if err != nil {
				return fmt.Errorf("part %d: %w", part.Number, err)
			}
			u.stats.Update(time.Since(start), part.Length)

			digests[part.Number-1] = digest
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{Digests: digests, Bytes: u.stats.Bytes()}, nil
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

func checkSequence(parts []Part) error {
	for i, part := range parts {
		if part.Number != i+1 {
			return fmt.Errorf("part %d out of sequence at position %d", part.Number, i+1)
		}
		if part.Length <= 0 {
			return fmt.Errorf("part %d is empty", part.Number)
		}
	}
	return nil
}
