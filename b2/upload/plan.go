package upload

import (
	"github.com/bitrise-io/go-b2/b2/network"
	"github.com/bitrise-io/go-b2/b2/network/partuploader"
)

// DefaultLargeFileLimit is the size above which files always take the multipart path.
const DefaultLargeFileLimit int64 = 3000000000

// Path is the upload protocol chosen for a payload.
type Path int

// Upload paths.
const (
	PathStandard Path = iota
	PathMultipart
)

func (p Path) String() string {
	if p == PathMultipart {
		return "multipart"
	}
	return "standard"
}

// ChoosePath takes the standard path only when the payload fits under both
// the large file limit and the recommended part size.
func ChoosePath(size, largeFileLimit, partSize int64) Path {
	if size <= largeFileLimit && size <= partSize {
		return PathStandard
	}
	return PathMultipart
}

// UploadPlan is the outcome of sizing a payload.
type UploadPlan struct {
	Size     int64
	Digest   string
	Path     Path
	PartSize int64
	Parts    []partuploader.Part
	// PartDigests holds, in part number order, the digest of every part as
	// hashed while sizing. Each part is checked against it before transfer so
	// the whole-file digest recorded at start matches the bytes sent.
	PartDigests []string
}

// PartDescriptor is everything needed to transfer one part. It lives only
// for the duration of that transfer.
type PartDescriptor struct {
	partuploader.Part
	Digest string
	Target network.UploadTarget
}

// PlanParts splits size bytes into parts of partSize, the last one holding
// the remainder. An exact multiple yields no empty trailing part.
func PlanParts(size, partSize int64) []partuploader.Part {
	if size <= 0 || partSize <= 0 {
		return nil
	}

	count := (size + partSize - 1) / partSize
	parts := make([]partuploader.Part, 0, count)
	for i := int64(0); i < count; i++ {
		offset := i * partSize
		length := partSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}
		parts = append(parts, partuploader.Part{
			Number: int(i) + 1,
			Offset: offset,
			Length: length,
		})
	}
	return parts
}
