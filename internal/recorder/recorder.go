package recorder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/betfoundry/playerlink/internal/metrics"
	"github.com/betfoundry/playerlink/internal/models"
)

// Recorder persists live feed events to the database off the channel's read
// loop. Writes happen in a background goroutine draining a buffered queue;
// a full queue drops the event rather than stalling the live channel.
type Recorder struct {
	db     *gorm.DB
	logger zerolog.Logger
	events chan models.FeedEvent
}

// New creates a Recorder writing through the given database
func New(db *gorm.DB, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger.With().Str("component", "recorder").Logger(),
		events: make(chan models.FeedEvent, 256),
	}
}

// Record enqueues one event for persistence. Never blocks.
func (r *Recorder) Record(kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordFeedEvent(kind, "marshal_error")
		r.logger.Error().Err(err).Str("kind", kind).Msg("Failed to marshal feed event")
		return
	}

	event := models.FeedEvent{
		Kind:       kind,
		Payload:    string(data),
		ReceivedAt: time.Now().UTC(),
	}

	select {
	case r.events <- event:
	default:
		metrics.RecordFeedEvent(kind, "dropped")
		r.logger.Warn().Str("kind", kind).Msg("Recorder queue full, dropping event")
	}
}

// Run drains the queue until the context is cancelled
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info().Msg("Starting feed recorder")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Feed recorder shutting down")
			return ctx.Err()
		case event := <-r.events:
			if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
				metrics.RecordFeedEvent(event.Kind, "failed")
				r.logger.Error().Err(err).Str("kind", event.Kind).Msg("Failed to record feed event")
				continue
			}
			metrics.RecordFeedEvent(event.Kind, "success")
		}
	}
}
