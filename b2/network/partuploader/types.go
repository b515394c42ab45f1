// Package partuploader sends the parts of a multipart upload through a
// bounded worker pool and collects their digests in part number order.
package partuploader

import "context"

// Part is one contiguous byte range of the upload.
type Part struct {
	// Number is 1-based.
	Number int
	Offset int64
	Length int64
}

// TransferFunc uploads one part and returns the digest of the bytes it sent.
// It is called from multiple goroutines when Concurrency is above 1.
type TransferFunc func(ctx context.Context, part Part) (string, error)

// Result holds the digests of all parts in part number order.
type Result struct {
	Digests []string
	Bytes   int64
}
