package notification

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/betfoundry/playerlink/internal/api"
	"github.com/betfoundry/playerlink/internal/metrics"
	"github.com/betfoundry/playerlink/internal/models"
)

// Feed is the unified notification list merging paginated REST fetches with
// live pushes. Read-state mutations are optimistic with snapshot rollback.
type Feed struct {
	client *api.Client
	logger zerolog.Logger
	limit  int

	mu      sync.Mutex
	items   []models.Notification
	offset  int
	hasMore bool
	loading bool
}

// Option configures the Feed
type Option func(*Feed)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Feed) {
		f.logger = logger.With().Str("component", "notifications").Logger()
	}
}

// WithPageSize sets the REST page size
func WithPageSize(limit int) Option {
	return func(f *Feed) {
		f.limit = limit
	}
}

// NewFeed creates a notification Feed
func NewFeed(client *api.Client, options ...Option) *Feed {
	feed := &Feed{
		client:  client,
		logger:  zerolog.Nop(),
		limit:   20,
		hasMore: true,
	}

	for _, option := range options {
		option(feed)
	}

	return feed
}

// FetchPage loads the next page, or the first page when reset is true.
// The offset advances by the number of items actually received, so a short
// page correctly ends pagination.
func (f *Feed) FetchPage(ctx context.Context, reset bool) error {
	f.mu.Lock()
	offset := f.offset
	if reset {
		offset = 0
	}
	f.loading = true
	f.mu.Unlock()

	query := url.Values{}
	query.Set("limit", strconv.Itoa(f.limit))
	query.Set("offset", strconv.Itoa(offset))

	var wires []models.NotificationWire
	err := f.client.Get(ctx, "/api/v1/notifications", query, &wires)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	if err != nil {
		return err
	}

	page := make([]models.Notification, 0, len(wires))
	for _, wire := range wires {
		page = append(page, Normalize(wire))
	}

	if reset {
		f.items = page
	} else {
		f.items = append(f.items, page...)
	}
	f.offset = offset + len(wires)
	f.hasMore = len(wires) == f.limit

	f.updateUnreadLocked()
	return nil
}

// LoadMore fetches the next page
func (f *Feed) LoadMore(ctx context.Context) error {
	return f.FetchPage(ctx, false)
}

// MarkRead optimistically flips a notification to read, rolling the list
// back to its pre-mutation snapshot if the server rejects the call. The
// failure is soft: logged and returned, not fatal to the feed.
func (f *Feed) MarkRead(ctx context.Context, id int64) error {
	f.mu.Lock()
	snapshot := f.cloneLocked()
	now := time.Now()
	mutated := false
	for i := range f.items {
		if f.items[i].ID == id && !f.items[i].Read {
			f.items[i].Read = true
			f.items[i].ReadAt = &now
			mutated = true
		}
	}
	f.updateUnreadLocked()
	f.mu.Unlock()

	if !mutated {
		return nil
	}

	path := fmt.Sprintf("/api/v1/notifications/%d/read", id)
	if err := f.client.Post(ctx, path, nil, nil); err != nil {
		f.rollback(snapshot)
		f.logger.Warn().Err(err).Int64("notification_id", id).Msg("Mark-as-read rejected, rolled back")
		return err
	}
	return nil
}

// MarkAllRead optimistically flips every notification to read with the same
// snapshot-rollback discipline as MarkRead
func (f *Feed) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	snapshot := f.cloneLocked()
	now := time.Now()
	mutated := false
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			f.items[i].ReadAt = &now
			mutated = true
		}
	}
	f.updateUnreadLocked()
	f.mu.Unlock()

	if !mutated {
		return nil
	}

	if err := f.client.Post(ctx, "/api/v1/notifications/read-all", nil, nil); err != nil {
		f.rollback(snapshot)
		f.logger.Warn().Err(err).Msg("Mark-all-as-read rejected, rolled back")
		return err
	}
	return nil
}

// AddLive prepends a pushed notification without touching the pagination
// bookkeeping. Duplicate deliveries of the same id are ignored.
func (f *Feed) AddLive(wire models.NotificationWire) {
	item := Normalize(wire)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.containsLocked(item.ID) {
		return
	}
	f.items = append([]models.Notification{item}, f.items...)
	f.updateUnreadLocked()
}

// ApplySync merges the initial-sync snapshot from the live channel,
// prepending only notifications not already known
func (f *Feed) ApplySync(wires []models.NotificationWire) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fresh := make([]models.Notification, 0, len(wires))
	for _, wire := range wires {
		item := Normalize(wire)
		if f.containsLocked(item.ID) {
			continue
		}
		fresh = append(fresh, item)
	}
	if len(fresh) > 0 {
		f.items = append(fresh, f.items...)
		f.updateUnreadLocked()
	}
}

// Items returns a copy of the current feed
func (f *Feed) Items() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cloneLocked()
}

// Unread returns the local unread count
func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadLocked()
}

// HasMore reports whether another page is expected
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// Loading reports whether a fetch is in progress
func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Clear drops all notification state on logout
func (f *Feed) Clear() {
	f.mu.Lock()
	f.items = nil
	f.offset = 0
	f.hasMore = true
	f.mu.Unlock()

	metrics.NotificationsUnread.Set(0)
}

func (f *Feed) rollback(snapshot []models.Notification) {
	f.mu.Lock()
	f.items = snapshot
	f.updateUnreadLocked()
	f.mu.Unlock()
}

func (f *Feed) cloneLocked() []models.Notification {
	items := make([]models.Notification, len(f.items))
	copy(items, f.items)
	return items
}

func (f *Feed) containsLocked(id int64) bool {
	for i := range f.items {
		if f.items[i].ID == id {
			return true
		}
	}
	return false
}

func (f *Feed) unreadLocked() int {
	count := 0
	for i := range f.items {
		if !f.items[i].Read {
			count++
		}
	}
	return count
}

func (f *Feed) updateUnreadLocked() {
	metrics.NotificationsUnread.Set(float64(f.unreadLocked()))
}
