package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DeadLetterStatus represents the handling state of a dead-letter entry
type DeadLetterStatus string

// Possible dead-letter status values
const (
	// DeadLetterStatusDead is the initial state: the job exhausted its
	// retries and awaits operator attention.
	DeadLetterStatusDead DeadLetterStatus = "dead"

	// DeadLetterStatusRetrying marks an entry whose job was requeued by an
	// operator. The entry is kept for audit; the requeued work runs under
	// a new job ID.
	DeadLetterStatusRetrying DeadLetterStatus = "retrying"

	// DeadLetterStatusResolved marks an entry an operator closed without
	// reprocessing.
	DeadLetterStatusResolved DeadLetterStatus = "resolved"
)

// Common validation errors for DeadLetterEntry
var (
	ErrEmptyDeadLetterID       = errors.New("dead letter ID cannot be empty")
	ErrEmptyOriginalJobID      = errors.New("dead letter original job ID cannot be empty")
	ErrInvalidDeadLetterStatus = errors.New("invalid dead letter status")
	ErrEmptyDeadLetterType     = errors.New("dead letter job type cannot be empty")
	ErrEmptyDeadLetterHistory  = errors.New("dead letter failure history cannot be empty")
	ErrDeadLetterNotesTooLong  = errors.New("dead letter resolution notes exceed maximum length")
)

// maxDeadLetterNotesLength bounds operator-supplied resolution notes.
const maxDeadLetterNotesLength = 4000

// DeadLetterEntry records a job that permanently failed, preserving
// everything an operator needs to inspect, requeue, or resolve it.
type DeadLetterEntry struct {
	ID              uuid.UUID        `json:"id"`
	OriginalJobID   uuid.UUID        `json:"original_job_id"`
	Type            string           `json:"type"`
	Payload         json.RawMessage  `json:"payload"`
	UserID          *uuid.UUID       `json:"user_id,omitempty"`
	FailureHistory  []FailureRecord  `json:"failure_history"`
	Status          DeadLetterStatus `json:"status"`
	ResolutionNotes string           `json:"resolution_notes,omitempty"`
	ResolvedBy      string           `json:"resolved_by,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
}

// NewDeadLetterEntry creates a dead-status entry from a permanently
// failed job, copying its identity, payload, and failure history.
// Returns an error if validation fails.
func NewDeadLetterEntry(job *Job) (*DeadLetterEntry, error) {
	entry := &DeadLetterEntry{
		ID:             uuid.New(),
		OriginalJobID:  job.ID,
		Type:           job.Type,
		Payload:        job.Payload,
		UserID:         job.UserID,
		FailureHistory: job.FailureHistory,
		Status:         DeadLetterStatusDead,
		CreatedAt:      time.Now().UTC(),
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return entry, nil
}

// Validate checks if the DeadLetterEntry has valid data.
// Returns an error if any field fails validation.
func (e *DeadLetterEntry) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyDeadLetterID
	}

	if e.OriginalJobID == uuid.Nil {
		return ErrEmptyOriginalJobID
	}

	if e.Type == "" {
		return ErrEmptyDeadLetterType
	}

	if len(e.FailureHistory) == 0 {
		return ErrEmptyDeadLetterHistory
	}

	if !isValidDeadLetterStatus(e.Status) {
		return ErrInvalidDeadLetterStatus
	}

	if len(e.ResolutionNotes) > maxDeadLetterNotesLength {
		return ErrDeadLetterNotesTooLong
	}

	return nil
}

// Valid reports whether the status is one of the known values.
func (s DeadLetterStatus) Valid() bool {
	return isValidDeadLetterStatus(s)
}

// isValidDeadLetterStatus checks if the given status is a valid DeadLetterStatus.
func isValidDeadLetterStatus(status DeadLetterStatus) bool {
	switch status {
	case DeadLetterStatusDead, DeadLetterStatusRetrying, DeadLetterStatusResolved:
		return true
	default:
		return false
	}
}
