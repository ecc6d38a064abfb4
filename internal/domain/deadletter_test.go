package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewDeadLetterEntry(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	job := &Job{
		ID:      uuid.New(),
		Type:    JobTypeInstagramSync,
		Payload: json.RawMessage(`{"handle":"atelier"}`),
		UserID:  &userID,
		Status:  JobStatusFailed,
		FailureHistory: []FailureRecord{
			{Message: "timeout", OccurredAt: time.Now().UTC()},
			{Message: "timeout", OccurredAt: time.Now().UTC()},
			{Message: "connection refused", OccurredAt: time.Now().UTC()},
		},
	}

	entry, err := NewDeadLetterEntry(job)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if entry.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}

	if entry.ID == job.ID {
		t.Error("Expected entry to have its own ID, got the job's ID")
	}

	if entry.OriginalJobID != job.ID {
		t.Errorf("Expected original job ID %s, got %s", job.ID, entry.OriginalJobID)
	}

	if entry.Status != DeadLetterStatusDead {
		t.Errorf("Expected status %s, got %s", DeadLetterStatusDead, entry.Status)
	}

	if len(entry.FailureHistory) != 3 {
		t.Errorf("Expected 3 failure records, got %d", len(entry.FailureHistory))
	}

	if entry.UserID == nil || *entry.UserID != userID {
		t.Errorf("Expected user ID %s, got %v", userID, entry.UserID)
	}

	// Entries without failure history are rejected: an entry exists only
	// because attempts failed, so an empty history is a bug upstream.
	bare := &Job{ID: uuid.New(), Type: JobTypeInstagramSync, Status: JobStatusFailed}
	if _, err := NewDeadLetterEntry(bare); err != ErrEmptyDeadLetterHistory {
		t.Errorf("Expected error %v, got %v", ErrEmptyDeadLetterHistory, err)
	}
}

func TestDeadLetterEntryValidate(t *testing.T) {
	t.Parallel()
	valid := DeadLetterEntry{
		ID:            uuid.New(),
		OriginalJobID: uuid.New(),
		Type:          JobTypeBrandDiscovery,
		Status:        DeadLetterStatusDead,
		FailureHistory: []FailureRecord{
			{Message: "boom", OccurredAt: time.Now().UTC()},
		},
	}

	if err := valid.Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	invalid := valid
	invalid.Status = DeadLetterStatus("bogus")
	if err := invalid.Validate(); err != ErrInvalidDeadLetterStatus {
		t.Errorf("Expected error %v, got %v", ErrInvalidDeadLetterStatus, err)
	}

	invalid = valid
	invalid.ResolutionNotes = strings.Repeat("x", maxDeadLetterNotesLength+1)
	if err := invalid.Validate(); err != ErrDeadLetterNotesTooLong {
		t.Errorf("Expected error %v, got %v", ErrDeadLetterNotesTooLong, err)
	}
}

func TestDeadLetterStatusValid(t *testing.T) {
	t.Parallel()
	for _, status := range []DeadLetterStatus{DeadLetterStatusDead, DeadLetterStatusRetrying, DeadLetterStatusResolved} {
		if !status.Valid() {
			t.Errorf("Expected status %s to be valid", status)
		}
	}

	if DeadLetterStatus("archived").Valid() {
		t.Error("Expected unknown status to be invalid")
	}
}
