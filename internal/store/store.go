package store

import (
	"context"

	"github.com/mfalkner/arbiter/internal/models"
)

// ConsultationFilter specifies filters for listing consultation history.
type ConsultationFilter struct {
	Subject string
	Kind    models.ConsultationKind
	Verdict models.Verdict
	Limit   int
}

// Store defines the persistence interface for consultation history.
type Store interface {
	RecordConsultation(ctx context.Context, c *models.Consultation) error
	GetConsultation(ctx context.Context, id string) (*models.Consultation, error)
	ListConsultations(ctx context.Context, filter ConsultationFilter) ([]*models.Consultation, error)
	PruneConsultations(ctx context.Context, keep int) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
