package b2

// BucketRef identifies a bucket either by ID or by name. Names are resolved
// through the cached bucket listing.
type BucketRef interface {
	bucketRef()
}

// BucketByID ...
type BucketByID string

// BucketByName ...
type BucketByName string

func (BucketByID) bucketRef()   {}
func (BucketByName) bucketRef() {}

// FileRef identifies a stored file version.
type FileRef interface {
	fileRef()
}

// FileByID refers to a file version by its ID.
type FileByID string

// FileByName refers to the latest version of a file in a bucket.
type FileByName struct {
	Bucket BucketRef
	Name   string
}

// FileVersion refers to a file version whose name and ID are both known, so
// no lookup is needed.
type FileVersion struct {
	ID   string
	Name string
}

func (FileByID) fileRef()    {}
func (FileByName) fileRef()  {}
func (FileVersion) fileRef() {}
