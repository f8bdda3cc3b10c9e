package blob

import (
	"context"
	"errors"
	"fmt"

	"filmmigrate/internal/config"
	"filmmigrate/internal/infra/blob/fs"
	"filmmigrate/internal/infra/blob/memory"
	"filmmigrate/internal/infra/blob/s3"
)

// ErrDisabled is returned by Open when report archiving is switched off.
var ErrDisabled = errors.New("blob: report archiving disabled")

// Open constructs the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Report) (Store, error) {
	switch cfg.Driver {
	case config.ReportFS, "":
		return NewFilesystem(cfg.FSRoot)
	case config.ReportMemory:
		return NewMemory(), nil
	case config.ReportS3:
		return NewS3(ctx, cfg.S3)
	case config.ReportNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown report driver %q", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) {
	store, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return memory.New() }

// NewS3 returns a bucket-backed store. Credentials come from the default AWS
// chain.
func NewS3(ctx context.Context, cfg config.S3) (Store, error) {
	store, err := s3.New(ctx, s3.Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("open s3 report store: %w", err)
	}
	return store, nil
}
