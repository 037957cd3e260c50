package models

import "time"

// ConsultationKind distinguishes history records by how they were run.
type ConsultationKind string

const (
	ConsultationKindSingle    ConsultationKind = "single"
	ConsultationKindMulti     ConsultationKind = "multi"
	ConsultationKindSynthesis ConsultationKind = "synthesis"
)

// Consultation is one logical consultation recorded in history.
type Consultation struct {
	ID            string
	Subject       string
	Kind          ConsultationKind
	Tools         []string
	Verdict       Verdict
	AgreementRate float64
	CacheHit      bool
	Duration      time.Duration
	CreatedAt     time.Time
}
