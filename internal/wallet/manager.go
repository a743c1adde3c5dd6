package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/betfoundry/playerlink/internal/api"
	"github.com/betfoundry/playerlink/internal/metrics"
	"github.com/betfoundry/playerlink/internal/models"
)

// Preferences persists the active-wallet choice across restarts
type Preferences interface {
	ActiveWalletID() string
	SetActiveWalletID(id string) error
}

// Manager is the single source of truth for wallet balances, reconciling
// REST fetches with pushed balance events. The wallet list never holds two
// entries with the same id; balances are the most recently observed value
// from either source.
type Manager struct {
	client    *api.Client
	prefs     Preferences
	logger    zerolog.Logger
	retryUnit time.Duration

	mu       sync.Mutex
	wallets  []models.Wallet
	activeID string
	loading  bool
	lastErr  error
}

// Option configures the Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.With().Str("component", "wallet").Logger()
	}
}

// WithRetryUnit sets the unit delay of the fetch retry backoff
func WithRetryUnit(unit time.Duration) Option {
	return func(m *Manager) {
		m.retryUnit = unit
	}
}

// NewManager creates a wallet Manager
func NewManager(client *api.Client, prefs Preferences, options ...Option) *Manager {
	manager := &Manager{
		client:    client,
		prefs:     prefs,
		logger:    zerolog.Nop(),
		retryUnit: time.Second,
	}

	for _, option := range options {
		option(manager)
	}

	return manager
}

// Fetch loads the wallet list, retrying twice with linear backoff before
// surfacing a terminal error. The loading flag stays up through the whole
// retry sequence.
func (m *Manager) Fetch(ctx context.Context) error {
	m.mu.Lock()
	m.loading = true
	m.lastErr = nil
	m.mu.Unlock()

	var fetchErr error
	for attempt := 0; attempt <= 2; attempt++ {
		if attempt > 0 {
			delay := m.retryUnit * time.Duration(attempt)
			m.logger.Warn().
				Err(fetchErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Wallet fetch failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				m.finishFetch(ctx.Err())
				return ctx.Err()
			}
		}

		var wires []models.WalletWire
		if err := m.client.Get(ctx, "/api/v1/wallets", nil, &wires); err != nil {
			fetchErr = err
			continue
		}

		m.replace(wires)
		m.finishFetch(nil)
		return nil
	}

	m.finishFetch(fetchErr)
	return fetchErr
}

// Retry is the manual retry affordance after a terminal fetch error
func (m *Manager) Retry(ctx context.Context) error {
	return m.Fetch(ctx)
}

func (m *Manager) finishFetch(err error) {
	m.mu.Lock()
	m.loading = false
	m.lastErr = err
	m.mu.Unlock()
}

// replace swaps in a freshly fetched wallet list, de-duplicated by id with
// later entries winning, then re-selects the active wallet
func (m *Manager) replace(wires []models.WalletWire) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]int)
	wallets := make([]models.Wallet, 0, len(wires))
	for _, wire := range wires {
		wallet := wire.Normalize()
		if index, ok := seen[wallet.ID]; ok {
			wallets[index] = wallet
			continue
		}
		seen[wallet.ID] = len(wallets)
		wallets = append(wallets, wallet)
	}

	m.wallets = wallets
	m.selectActiveLocked()
	metrics.WalletsTracked.Set(float64(len(m.wallets)))
}

// selectActiveLocked applies the fallback chain: persisted choice, then the
// default wallet, then the first wallet, then none
func (m *Manager) selectActiveLocked() {
	if len(m.wallets) == 0 {
		m.activeID = ""
		return
	}

	if persisted := m.prefs.ActiveWalletID(); persisted != "" {
		if m.findLocked(persisted) != nil {
			m.activeID = persisted
			return
		}
	}

	for _, wallet := range m.wallets {
		if wallet.IsDefault {
			m.activeID = wallet.ID
			return
		}
	}

	m.activeID = m.wallets[0].ID
}

func (m *Manager) findLocked(id string) *models.Wallet {
	for i := range m.wallets {
		if m.wallets[i].ID == id {
			return &m.wallets[i]
		}
	}
	return nil
}

func (m *Manager) findByCurrencyLocked(code string) *models.Wallet {
	for i := range m.wallets {
		if m.wallets[i].Currency.Code == code {
			return &m.wallets[i]
		}
	}
	return nil
}

// ApplyPush merges pushed balance events into the wallet list. An event
// matches an existing wallet by id, falling back to currency code; with no
// match and a usable id a wallet is synthesized; id-less entries with no
// match are dropped individually. Applying the same event twice is a no-op.
func (m *Manager) ApplyPush(pushes []models.BalancePush) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, push := range pushes {
		key := push.Key()

		var target *models.Wallet
		if key != "" {
			target = m.findLocked(key)
		}
		if target == nil && push.Currency != "" {
			target = m.findByCurrencyLocked(push.Currency)
		}

		if target == nil {
			if key == "" {
				m.logger.Debug().Str("currency", push.Currency).Msg("Dropping id-less balance event")
				continue
			}
			wallet := models.Wallet{
				ID:            key,
				Currency:      models.Currency{Code: push.Currency},
				Balance:       push.Balance.Float64(),
				LockedBalance: push.BonusBalance.Float64(),
			}
			if push.IsDefault != nil {
				wallet.IsDefault = *push.IsDefault
			}
			m.wallets = append(m.wallets, wallet)
			m.logger.Debug().Str("wallet_id", key).Msg("Synthesized wallet from balance event")
			continue
		}

		target.Balance = push.Balance.Float64()
		target.LockedBalance = push.BonusBalance.Float64()
		if push.IsDefault != nil {
			target.IsDefault = *push.IsDefault
		}
	}

	metrics.WalletsTracked.Set(float64(len(m.wallets)))
}

// SetActive switches the active wallet and persists the choice. Unknown ids
// are a no-op.
func (m *Manager) SetActive(id string) {
	m.mu.Lock()
	if m.findLocked(id) == nil {
		m.mu.Unlock()
		m.logger.Debug().Str("wallet_id", id).Msg("Ignoring unknown active wallet")
		return
	}
	m.activeID = id
	m.mu.Unlock()

	if err := m.prefs.SetActiveWalletID(id); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist active wallet")
	}
}

// SetDefault optimistically flips the default flag locally, persists it via
// REST, then refetches to reconcile with server truth regardless of outcome.
// The optimistic flip is not rolled back on failure; the refetch settles it.
func (m *Manager) SetDefault(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.findLocked(id) == nil {
		m.mu.Unlock()
		return fmt.Errorf("unknown wallet %q", id)
	}
	for i := range m.wallets {
		m.wallets[i].IsDefault = m.wallets[i].ID == id
	}
	m.mu.Unlock()

	body := map[string]string{"wallet_id": id}
	postErr := m.client.Post(ctx, "/api/v1/wallets/default", body, nil)
	if postErr != nil {
		m.logger.Error().Err(postErr).Str("wallet_id", id).Msg("Failed to set default wallet")
	}

	if err := m.Fetch(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Reconciling refetch failed")
	}

	return postErr
}

// Wallets returns a copy of the current wallet list
func (m *Manager) Wallets() []models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallets := make([]models.Wallet, len(m.wallets))
	copy(wallets, m.wallets)
	return wallets
}

// Active returns the active wallet, false when the list is empty
func (m *Manager) Active() (models.Wallet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wallet := m.findLocked(m.activeID); wallet != nil {
		return *wallet, true
	}
	return models.Wallet{}, false
}

// Loading reports whether a fetch sequence is in progress
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Err returns the terminal error of the last fetch sequence, if any
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Clear drops all wallet state on logout
func (m *Manager) Clear() {
	m.mu.Lock()
	m.wallets = nil
	m.activeID = ""
	m.lastErr = nil
	m.mu.Unlock()

	metrics.WalletsTracked.Set(0)
}

// TotalBalance fetches the cross-wallet balance summary
func (m *Manager) TotalBalance(ctx context.Context) (models.TotalBalance, error) {
	var total models.TotalBalance
	if err := m.client.Get(ctx, "/api/v1/wallets/balance", nil, &total); err != nil {
		return models.TotalBalance{}, err
	}
	return total, nil
}
