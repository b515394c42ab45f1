// Package upload decides between the single request and the multipart
// protocol for a payload and drives the chosen one to completion.
package upload

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-b2/b2/hashing"
	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-b2/b2/network"
	"github.com/bitrise-io/go-b2/b2/network/partuploader"
	"github.com/bitrise-io/go-b2/b2/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// DefaultContentType lets the service detect the content type from the file name.
const DefaultContentType = "b2/x-auto"

// API is the subset of remote calls an upload needs.
type API interface {
	GetUploadURL(ctx context.Context, bucketID string) (network.UploadTarget, error)
	UploadFile(ctx context.Context, target network.UploadTarget, file network.FileUpload) (model.FileRecord, error)
	StartLargeFile(ctx context.Context, start network.LargeFileStart) (model.FileRecord, error)
	GetUploadPartURL(ctx context.Context, fileID string) (network.UploadTarget, error)
	UploadPart(ctx context.Context, target network.UploadTarget, part network.PartUpload) (network.PartRecord, error)
	FinishLargeFile(ctx context.Context, fileID string, digests []string) (model.FileRecord, error)
}

// PartSizer provides the server advised part size.
type PartSizer interface {
	RecommendedPartSize(ctx context.Context) (int64, error)
}

// Config ...
type Config struct {
	LargeFileLimit int64
	Uploader       partuploader.Config
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		LargeFileLimit: DefaultLargeFileLimit,
		Uploader:       partuploader.DefaultConfig(),
	}
}

// Request describes one file to upload.
type Request struct {
	BucketID string `validate:"required"`
	Name     string `validate:"required"`
	// ContentType defaults to DefaultContentType.
	ContentType string
	// LastModified defaults to the time of the upload.
	LastModified time.Time
	// Info is extra file info stored with the file.
	Info map[string]string
	// Source must support independent positioned reads; parts are read from
	// it concurrently when the uploader runs in parallel.
	Source hashing.Source `validate:"required"`
}

// Orchestrator ...
type Orchestrator struct {
	api    API
	sizer  PartSizer
	config Config
	logger log.Logger
	now    func() time.Time
}

// NewOrchestrator ...
func NewOrchestrator(api API, sizer PartSizer, config Config, logger log.Logger) *Orchestrator {
	if config.LargeFileLimit <= 0 {
		config.LargeFileLimit = DefaultLargeFileLimit
	}
	return &Orchestrator{
		api:    api,
		sizer:  sizer,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Upload sizes the source, picks the upload path and runs it.
func (o *Orchestrator) Upload(ctx context.Context, req Request) (model.FileRecord, error) {
	req.Name = strings.TrimLeft(req.Name, "/")
	if err := model.Validate(req); err != nil {
		return model.FileRecord{}, err
	}
	if req.ContentType == "" {
		req.ContentType = DefaultContentType
	}
	if req.LastModified.IsZero() {
		req.LastModified = o.now()
	}

	plan, err := o.plan(ctx, req.Source)
	if err != nil {
		return model.FileRecord{}, err
	}

	o.logger.Infof("Uploading %s (%s) using the %s path", req.Name, humanSize(plan.Size), plan.Path)

	var record model.FileRecord
	switch plan.Path {
	case PathStandard:
		record, err = o.uploadStandard(ctx, req, plan)
	default:
		record, err = o.uploadMultipart(ctx, req, plan)
	}
	if err != nil {
		return model.FileRecord{}, err
	}

	o.logger.Donef("Uploaded %s (%s)", record.Name, record.ID)
	return record, nil
}

func (o *Orchestrator) plan(ctx context.Context, src hashing.Source) (*UploadPlan, error) {
	partSize, err := o.sizer.RecommendedPartSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("get recommended part size: %w", err)
	}
	if partSize <= 0 {
		return nil, fmt.Errorf("invalid recommended part size: %d", partSize)
	}

	digest, size, partDigests, err := hashing.DigestParts(src, partSize)
	if err != nil {
		return nil, err
	}

	plan := &UploadPlan{
		Size:     size,
		Digest:   digest,
		Path:     ChoosePath(size, o.config.LargeFileLimit, partSize),
		PartSize: partSize,
	}
	if plan.Path == PathMultipart {
		plan.Parts = PlanParts(size, partSize)
		plan.PartDigests = partDigests
	}
	return plan, nil
}

func (o *Orchestrator) uploadStandard(ctx context.Context, req Request, plan *UploadPlan) (model.FileRecord, error) {
	target, err := o.api.GetUploadURL(ctx, req.BucketID)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("get upload url: %w", err)
	}

	digest, data, err := hashing.DigestRange(req.Source, 0, plan.Size)
	if err != nil {
		return model.FileRecord{}, err
	}
	if digest != plan.Digest || int64(len(data)) != plan.Size {
		return model.FileRecord{}, fmt.Errorf("source changed while uploading %s", req.Name)
	}

	return o.api.UploadFile(ctx, target, network.FileUpload{
		Name:               req.Name,
		ContentType:        req.ContentType,
		ContentSHA1:        digest,
		LastModifiedMillis: req.LastModified.UnixMilli(),
		ContentLength:      plan.Size,
		Body:               transport.BytesBody(data),
	})
}

func (o *Orchestrator) uploadMultipart(ctx context.Context, req Request, plan *UploadPlan) (model.FileRecord, error) {
	info := make(map[string]string, len(req.Info)+2)
	for key, value := range req.Info {
		info[key] = value
	}
	info[model.InfoLastModifiedMillis] = strconv.FormatInt(req.LastModified.UnixMilli(), 10)
	info[model.InfoLargeFileSHA1] = plan.Digest

	started, err := o.api.StartLargeFile(ctx, network.LargeFileStart{
		BucketID:    req.BucketID,
		Name:        req.Name,
		ContentType: req.ContentType,
		Info:        info,
	})
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("start large file: %w", err)
	}

	o.logger.Infof("Uploading %d parts of %s", len(plan.Parts), humanSize(plan.PartSize))

	uploader := partuploader.New(o.config.Uploader, o.logger)
	result, err := uploader.Upload(ctx, plan.Parts, func(ctx context.Context, part partuploader.Part) (string, error) {
		return o.transferPart(ctx, started.ID, req.Source, part, plan)
	})
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("upload large file %s: %w", started.ID, err)
	}

	record, err := o.api.FinishLargeFile(ctx, started.ID, result.Digests)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("finish large file: %w", err)
	}
	return record, nil
}

func (o *Orchestrator) transferPart(ctx context.Context, fileID string, src hashing.Source, part partuploader.Part, plan *UploadPlan) (string, error) {
	target, err := o.api.GetUploadPartURL(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("get upload part url: %w", err)
	}

	digest, data, err := hashing.DigestRange(src, part.Offset, part.Length)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != part.Length {
		return "", fmt.Errorf("source ended after %d of %d bytes", len(data), part.Length)
	}
	if digest != plan.PartDigests[part.Number-1] {
		return "", fmt.Errorf("source changed while uploading part %d", part.Number)
	}

	desc := PartDescriptor{Part: part, Digest: digest, Target: target}
	o.logger.Printf("Uploading part %d/%d (%s)", desc.Number, len(plan.Parts), humanSize(desc.Length))

	if _, err := o.api.UploadPart(ctx, desc.Target, network.PartUpload{
		Number:      desc.Number,
		ContentSHA1: desc.Digest,
		Data:        data,
	}); err != nil {
		return "", err
	}
	return desc.Digest, nil
}

func humanSize(bytes int64) string {
	return units.HumanSizeWithPrecision(float64(bytes), 3)
}
