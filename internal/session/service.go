package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/betfoundry/playerlink/internal/api"
	"github.com/betfoundry/playerlink/internal/models"
)

// AuthError carries a user-displayable message from a rejected login or
// register attempt
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// RegisterRequest is the registration payload. Profile fields beyond the
// credentials pass through to the backend untouched.
type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Country     string `json:"country,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	PromoCode   string `json:"promo_code,omitempty"`
}

// TokenClaims are the informational claims decoded from the access token.
// The token is not verified locally; the backend is the authority.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// Service owns the token lifecycle: hydrate on start, mutate on
// login/refresh, clear on logout. It is the only component that touches the
// credential store. It implements api.TokenStore so the HTTP client routes
// all token mutation through it.
type Service struct {
	store  Store
	client *api.Client
	logger zerolog.Logger

	mu        sync.RWMutex
	creds     Credentials
	remember  bool
	observers []func(authenticated bool)
}

// NewService creates a Service and hydrates it synchronously from the store
// so nothing reads a premature "not authenticated" state.
func NewService(store Store, logger zerolog.Logger) (*Service, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate session: %w", err)
	}

	return &Service{
		store:    store,
		logger:   logger.With().Str("component", "session").Logger(),
		creds:    creds,
		remember: true,
	}, nil
}

// UseClient wires the HTTP client the service calls for auth endpoints.
// The client is constructed with the service as its token store, so the two
// are bound after both exist.
func (s *Service) UseClient(client *api.Client) {
	s.client = client
}

// IsAuthenticated reports whether both tokens are present
func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken != "" && s.creds.RefreshToken != ""
}

// PlayerID returns the authenticated account id, empty when logged out
func (s *Service) PlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.PlayerID
}

// AccessToken implements api.TokenStore
func (s *Service) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// RefreshToken implements api.TokenStore
func (s *Service) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken
}

// SetAccessToken implements api.TokenStore, persisting the refreshed token
func (s *Service) SetAccessToken(token string) error {
	s.mu.Lock()
	s.creds.AccessToken = token
	err := s.persistLocked()
	s.mu.Unlock()
	return err
}

// ClearTokens implements api.TokenStore. The token pair and account id go
// together; the active-wallet preference survives so it can be reused after
// the next login.
func (s *Service) ClearTokens() error {
	s.mu.Lock()
	s.creds.AccessToken = ""
	s.creds.RefreshToken = ""
	s.creds.PlayerID = ""
	err := s.persistLocked()
	s.mu.Unlock()

	s.notify(false)
	return err
}

// ActiveWalletID returns the persisted active-wallet preference
func (s *Service) ActiveWalletID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.ActiveWalletID
}

// SetActiveWalletID persists the active-wallet preference
func (s *Service) SetActiveWalletID(id string) error {
	s.mu.Lock()
	s.creds.ActiveWalletID = id
	err := s.persistLocked()
	s.mu.Unlock()
	return err
}

// OnChange registers an observer of the authenticated state
func (s *Service) OnChange(fn func(authenticated bool)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Login authenticates with the backend and stores the issued token pair.
// A backend rejection or a structurally invalid response yields an AuthError
// with a displayable message; no tokens are stored in either case.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) error {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var resp models.AuthResponse
	if err := s.client.Post(ctx, "/api/v1/auth/login", body, &resp); err != nil {
		return s.asAuthError(err)
	}

	return s.establish(resp, rememberMe)
}

// Register creates an account and establishes the session like Login
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	var resp models.AuthResponse
	if err := s.client.Post(ctx, "/api/v1/auth/register", req, &resp); err != nil {
		return s.asAuthError(err)
	}

	return s.establish(resp, true)
}

// establish validates the auth payload and commits the session
func (s *Service) establish(resp models.AuthResponse, remember bool) error {
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.Player == nil || resp.Player.ID == "" {
		return &AuthError{Message: "Invalid response from server"}
	}

	s.mu.Lock()
	s.creds.AccessToken = resp.AccessToken
	s.creds.RefreshToken = resp.RefreshToken
	s.creds.PlayerID = resp.Player.ID.String()
	s.remember = remember
	err := s.persistLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist session")
	}

	s.logger.Info().Str("player_id", resp.Player.ID.String()).Msg("Session established")
	s.notify(true)
	return nil
}

// Logout best-effort informs the backend, then always clears local state.
// A network failure never blocks logging out.
func (s *Service) Logout(ctx context.Context) error {
	token := s.AccessToken()
	if token != "" {
		body := map[string]string{"access_token": token}
		if err := s.client.Post(ctx, "/api/v1/auth/logout", body, nil); err != nil {
			s.logger.Warn().Err(err).Msg("Logout request failed, clearing session anyway")
		}
	}

	return s.ClearTokens()
}

// CheckEmailAvailability reports whether an email is free to register.
// Any failure reports unavailable so the UI never falsely claims a free
// address.
func (s *Service) CheckEmailAvailability(ctx context.Context, email string) (bool, error) {
	return s.checkAvailability(ctx, "/api/v1/auth/check-email", "email", email)
}

// CheckUsernameAvailability reports whether a username is free to register
func (s *Service) CheckUsernameAvailability(ctx context.Context, username string) (bool, error) {
	return s.checkAvailability(ctx, "/api/v1/auth/check-username", "username", username)
}

func (s *Service) checkAvailability(ctx context.Context, path, field, value string) (bool, error) {
	query := url.Values{}
	query.Set(field, value)

	var resp struct {
		Available bool `json:"available"`
	}
	if err := s.client.Get(ctx, path, query, &resp); err != nil {
		s.logger.Warn().Err(err).Str("field", field).Msg("Availability check failed")
		return false, err
	}
	return resp.Available, nil
}

// TokenClaims decodes the current access token without verifying it.
// Informational only: expiry is handled reactively on 401, never by timer.
func (s *Service) TokenClaims() (*TokenClaims, error) {
	token := s.AccessToken()
	if token == "" {
		return nil, errors.New("no access token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	result := &TokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		result.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
	}
	return result, nil
}

// asAuthError converts backend business rejections into AuthError with the
// backend's message; transport errors pass through unchanged
func (s *Service) asAuthError(err error) error {
	if apiErr, ok := api.IsAPIError(err); ok {
		return &AuthError{Message: apiErr.Message}
	}
	return err
}

// persistLocked writes credentials through the store. Sessions not marked
// remembered persist only the wallet preference, never tokens.
func (s *Service) persistLocked() error {
	creds := s.creds
	if !s.remember {
		creds.AccessToken = ""
		creds.RefreshToken = ""
	}
	return s.store.Save(creds)
}

func (s *Service) notify(authenticated bool) {
	s.mu.RLock()
	observers := make([]func(bool), len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(authenticated)
	}
}
