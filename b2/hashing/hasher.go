package hashing

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Digest returns the hex encoded SHA1 of data. SHA1 is the digest the
// service verifies uploaded content and parts against.
func Digest(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// DigestAndSize streams the whole source through the hash without holding it
// in memory and returns the digest together with the number of bytes hashed.
func DigestAndSize(src Source) (string, int64, error) {
	hash := sha1.New()
	n, err := io.Copy(hash, io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		return "", 0, fmt.Errorf("hash source: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), n, nil
}

// DigestRange reads length bytes starting at offset and returns their digest
// together with the bytes themselves, so callers transmit exactly what was
// hashed. Fewer bytes are returned only when the source ends early; detecting
// a truncated range is left to the caller.
func DigestRange(src Source, offset, length int64) (string, []byte, error) {
	if offset < 0 || length < 0 {
		return "", nil, fmt.Errorf("invalid range: offset %d, length %d", offset, length)
	}

	if remaining := src.Size() - offset; remaining < length {
		length = remaining
	}
	if length < 0 {
		length = 0
	}

	data := make([]byte, length)
	n, err := src.ReadAt(data, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read range at %d: %w", offset, err)
	}
	data = data[:n]

	return Digest(data), data, nil
}

// DigestParts streams the source once like DigestAndSize and also returns the
// digest of every consecutive partSize slice, the last one holding the
// remainder.
func DigestParts(src Source, partSize int64) (string, int64, []string, error) {
	if partSize <= 0 {
		return "", 0, nil, fmt.Errorf("invalid part size: %d", partSize)
	}

	whole := sha1.New()
	r := io.NewSectionReader(src, 0, src.Size())
	var size int64
	var parts []string
	for {
		part := sha1.New()
		n, err := io.Copy(io.MultiWriter(whole, part), io.LimitReader(r, partSize))
		if err != nil {
			return "", 0, nil, fmt.Errorf("hash source: %w", err)
		}
		if n == 0 {
			break
		}
		size += n
		parts = append(parts, hex.EncodeToString(part.Sum(nil)))
		if n < partSize {
			break
		}
	}
	return hex.EncodeToString(whole.Sum(nil)), size, parts, nil
}
