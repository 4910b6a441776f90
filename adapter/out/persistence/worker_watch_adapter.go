package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ out.WatchChannelRepository = (*WatchAdapter)(nil)

// WatchAdapter implements out.WatchChannelRepository using PostgreSQL.
type WatchAdapter struct {
	db *sqlx.DB
}

// NewWatchAdapter creates a new WatchAdapter.
func NewWatchAdapter(db *sqlx.DB) *WatchAdapter {
	return &WatchAdapter{db: db}
}

const watchColumns = `business_id, calendar_id, channel_id, resource_id, expires_at`

func (a *WatchAdapter) SaveWatch(ctx context.Context, watch *domain.WatchChannel) error {
	if watch == nil || watch.ChannelID == "" {
		return ErrInvalidInput
	}

	query := `
		INSERT INTO calendar_watch_channels (` + watchColumns + `)
		VALUES (:business_id, :calendar_id, :channel_id, :resource_id, :expires_at)
		ON CONFLICT (channel_id) DO UPDATE SET
			resource_id = EXCLUDED.resource_id,
			expires_at = EXCLUDED.expires_at`

	_, err := a.db.NamedExecContext(ctx, query, watch)
	return err
}

func (a *WatchAdapter) ListWatches(ctx context.Context, businessID uuid.UUID) ([]*domain.WatchChannel, error) {
	var watches []*domain.WatchChannel
	query := `SELECT ` + watchColumns + ` FROM calendar_watch_channels WHERE business_id = $1 ORDER BY calendar_id`
	if err := a.db.SelectContext(ctx, &watches, query, businessID); err != nil {
		return nil, err
	}
	return watches, nil
}

// GetWatchByChannel returns (nil, nil) for unknown channels (for webhook handling).
func (a *WatchAdapter) GetWatchByChannel(ctx context.Context, channelID string) (*domain.WatchChannel, error) {
	var watch domain.WatchChannel
	query := `SELECT ` + watchColumns + ` FROM calendar_watch_channels WHERE channel_id = $1`
	if err := a.db.GetContext(ctx, &watch, query, channelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &watch, nil
}

// ListExpiringWatches returns channels of every business expiring before the given time.
func (a *WatchAdapter) ListExpiringWatches(ctx context.Context, before time.Time) ([]*domain.WatchChannel, error) {
	var watches []*domain.WatchChannel
	query := `SELECT ` + watchColumns + ` FROM calendar_watch_channels WHERE expires_at < $1 ORDER BY expires_at`
	if err := a.db.SelectContext(ctx, &watches, query, before); err != nil {
		return nil, err
	}
	return watches, nil
}

func (a *WatchAdapter) DeleteWatch(ctx context.Context, channelID string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM calendar_watch_channels WHERE channel_id = $1`, channelID)
	return err
}
