// Package audit stores the audit trail of borrow transitions, catalog
// changes and authentication events.
package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

const defaultPageSize = 50

// Filter narrows GetEvents. Zero values mean "any".
type Filter struct {
	ActorID    uint
	EventType  entities.AuditEventType
	EntityType string
	EntityID   uint
	Since      time.Time
	Limit      int
	Offset     int
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LogEvent saves an audit event to the database.
func (r *Repository) LogEvent(ctx context.Context, event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	return r.db.WithContext(ctx).Create(event).Error
}

// GetEvents retrieves paginated audit events, most recent first.
func (r *Repository) GetEvents(ctx context.Context, filter Filter) ([]entities.AuditEvent, int64, error) {
	events := []entities.AuditEvent{}
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.AuditEvent{})
	if filter.ActorID > 0 {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID > 0 {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at > ?", filter.Since.UTC())
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// DeleteOldEvents removes audit events older than the specified time.
// Returns the number of deleted events.
func (r *Repository) DeleteOldEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", olderThan.UTC()).Delete(&entities.AuditEvent{})
	return result.RowsAffected, result.Error
}

// GetEventByID retrieves a single audit event by ID.
func (r *Repository) GetEventByID(ctx context.Context, id uint) (*entities.AuditEvent, error) {
	var event entities.AuditEvent
	err := r.db.WithContext(ctx).First(&event, id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
