// Package hashing computes the content digests the service verifies uploads
// against, over byte sources that can be read more than once.
package hashing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Source is a finite byte source that supports repeated, independent
// positioned reads. Every upload hashes a range and then transmits the bytes it
// hashed, so a Source must keep returning the same bytes for the same range
// for the lifetime of an upload.
//
// ReadAt must be safe for concurrent use when the source is handed to a
// parallel part uploader. The bytes and file backends are; SeekerSource
// serializes access itself.
type Source interface {
	io.ReaderAt
	Size() int64
}

// NewBytesSource wraps an in-memory buffer. The buffer must not be modified
// until the upload returns.
func NewBytesSource(data []byte) Source {
	return bytes.NewReader(data)
}

// FileSource reads from an open file through positioned reads.
type FileSource struct {
	file    *os.File
	size    int64
	cleanup func() error
}

// NewFileSource snapshots the size of file. The file is not closed by the source.
func NewFileSource(file *os.File) (*FileSource, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", file.Name())
	}
	return &FileSource{file: file, size: info.Size()}, nil
}

// OpenFileSource opens path for reading. Close releases the file.
func OpenFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	source, err := NewFileSource(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	source.cleanup = file.Close
	return source, nil
}

// Spool copies a one-shot stream into a temporary file so it can be hashed
// and then re-read for transmission. Close removes the temporary file.
func Spool(r io.Reader) (*FileSource, error) {
	tmp, err := os.CreateTemp("", "b2-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	remove := func() error {
		closeErr := tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil {
			return err
		}
		return closeErr
	}

	if _, err := io.Copy(tmp, r); err != nil {
		_ = remove()
		return nil, fmt.Errorf("spool stream: %w", err)
	}

	source, err := NewFileSource(tmp)
	if err != nil {
		_ = remove()
		return nil, err
	}
	source.cleanup = remove
	return source, nil
}

// ReadAt ...
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size ...
func (s *FileSource) Size() int64 {
	return s.size
}

// Close releases resources owned by the source. Sources created with
// NewFileSource do not own their file.
func (s *FileSource) Close() error {
	if s.cleanup == nil {
		return nil
	}
	cleanup := s.cleanup
	s.cleanup = nil
	return cleanup()
}

// SeekerSource adapts a stream that can seek but not read at an offset.
// Reads are serialized and the stream position is restored after each one.
type SeekerSource struct {
	rs   io.ReadSeeker
	size int64
	mu   sync.Mutex
}

// NewSeekerSource measures rs by seeking to its end and back to where it was.
func NewSeekerSource(rs io.ReadSeeker) (*SeekerSource, error) {
	current, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("get stream position: %w", err)
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek to stream end: %w", err)
	}
	if _, err := rs.Seek(current, io.SeekStart); err != nil {
		return nil, fmt.Errorf("restore stream position: %w", err)
	}
	return &SeekerSource{rs: rs, size: end}, nil
}

// ReadAt ...
func (s *SeekerSource) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("get stream position: %w", err)
	}
	defer func() {
		if _, seekErr := s.rs.Seek(current, io.SeekStart); seekErr != nil && err == nil {
			err = fmt.Errorf("restore stream position: %w", seekErr)
		}
	}()

	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to position %d: %w", off, err)
	}

	n, err = io.ReadFull(s.rs, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// Size ...
func (s *SeekerSource) Size() int64 {
	return s.size
}
