// Package audit records who did what to which borrow, copy, work or person.
// Writes happen after the business transaction has committed and never
// block the caller.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.repo.LogEvent(ctx, event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Flush waits for background writes started by LogAsync.
func (s *Service) Flush() {
	s.pending.Wait()
}

// LogBorrow records a borrow transition. b may be nil when the operation
// failed before a borrow existed.
func (s *Service) LogBorrow(actorID uint, action string, borrowID uint, b *entities.Borrow, err error) {
	event := &entities.AuditEvent{
		ActorID:     actorID,
		EventType:   entities.AuditEventBorrow,
		Action:      "borrow_" + action,
		Description: fmt.Sprintf("%s borrow %d", action, borrowID),
		EntityType:  "borrow",
		Status:      entities.AuditStatusSuccess,
	}
	if borrowID != 0 {
		event.EntityID = &borrowID
	}

	if b != nil {
		event.Description = fmt.Sprintf("%s borrow %d (copy %d, borrower %d) -> %s", action, b.ID, b.CopyID, b.BorrowerID, b.Status)
		event.Metadata = encodeMetadata(map[string]any{
			"status":      b.Status,
			"copy_id":     b.CopyID,
			"work_id":     b.WorkID,
			"borrower_id": b.BorrowerID,
			"staff_id":    b.StaffID,
			"due_date":    b.DueDate,
		})
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// LogSweep records a run of the overdue sweep.
func (s *Service) LogSweep(trigger string, marked int64, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventSweep,
		Action:      "overdue_sweep",
		Description: fmt.Sprintf("Marked %d borrows overdue (%s)", marked, trigger),
		Metadata:    encodeMetadata(map[string]any{"trigger": trigger, "marked": marked}),
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// LogCatalog records a change to a work, copy or reference record.
func (s *Service) LogCatalog(actorID uint, action, entityType string, entityID uint, description string) {
	event := &entities.AuditEvent{
		ActorID:     actorID,
		EventType:   entities.AuditEventCatalog,
		Action:      action,
		Description: truncate(description, 500),
		EntityType:  entityType,
		EntityID:    &entityID,
		Status:      entities.AuditStatusSuccess,
	}

	s.LogAsync(event)
}

// LogPerson records a change to a person record.
func (s *Service) LogPerson(actorID uint, action string, personID uint, description string) {
	event := &entities.AuditEvent{
		ActorID:     actorID,
		EventType:   entities.AuditEventPerson,
		Action:      action,
		Description: truncate(description, 500),
		EntityType:  "person",
		EntityID:    &personID,
		Status:      entities.AuditStatusSuccess,
	}

	s.LogAsync(event)
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(personID uint, action string, ipAddr, userAgent string, success bool) {
	event := &entities.AuditEvent{
		ActorID:   personID,
		EventType: entities.AuditEventAuth,
		Action:    action,
		IPAddress: ipAddr,
		UserAgent: truncate(userAgent, 500),
		Status:    entities.AuditStatusSuccess,
	}

	if !success {
		event.Status = entities.AuditStatusFailed
	}

	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(ctx context.Context, filter audit.Filter) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(ctx, filter)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func encodeMetadata(metadata map[string]any) string {
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}

// truncate shortens a string to at most maxLen bytes without splitting a
// multi-byte character.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
