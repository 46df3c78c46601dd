// Package timesheets owns the task lifecycle, the append-only submission
// store and the per-supervisor approval workflow that aggregates into a
// submission's overall status.
package timesheets

import (
	"context"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contracthub/roster"
)

// FileStore is the external storage collaborator for uploads.
type FileStore interface {
	Save(ctx context.Context, r io.Reader, name string) (string, error)
	Delete(ctx context.Context, ref string) error
	URL(ref string) string
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Upload is an incoming file: a stream plus the client's filename.
type Upload struct {
	Reader io.Reader
	Name   string
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	files  FileStore
	roster *roster.Service

	// approveWhenUnsupervised resolves the empty-supervisor-set edge
	// case: true lets rule "all assigned supervisors approved" hold
	// vacuously, false keeps such submissions pending forever.
	approveWhenUnsupervised bool
}

func New(db *gorm.DB, log *zap.Logger, files FileStore, r *roster.Service, approveWhenUnsupervised bool) *Service {
	return &Service{
		db:                      db,
		log:                     log,
		files:                   files,
		roster:                  r,
		approveWhenUnsupervised: approveWhenUnsupervised,
	}
}
