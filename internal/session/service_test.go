package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betfoundry/playerlink/internal/api"
)

const loginOK = `{"success":true,"data":{"access_token":"access-1","refresh_token":"refresh-1","player":{"id":123,"email":"p@example.com","username":"player"}}}`

func newService(t *testing.T, store Store, handler http.Handler) (*Service, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	service, err := NewService(store, zerolog.Nop())
	require.NoError(t, err)
	service.UseClient(api.New(server.URL, service))
	return service, server
}

func TestLogin(t *testing.T) {
	t.Run("success stores tokens and account id", func(t *testing.T) {
		store := NewMemoryStore()
		service, _ := newService(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(loginOK))
		}))

		var authEvents []bool
		service.OnChange(func(authenticated bool) {
			authEvents = append(authEvents, authenticated)
		})

		err := service.Login(context.Background(), "p@example.com", "secret", true)
		require.NoError(t, err)

		assert.True(t, service.IsAuthenticated())
		assert.Equal(t, "123", service.PlayerID())
		assert.Equal(t, []bool{true}, authEvents)

		creds, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "access-1", creds.AccessToken)
		assert.Equal(t, "refresh-1", creds.RefreshToken)
	})

	t.Run("wrong password surfaces backend message", func(t *testing.T) {
		store := NewMemoryStore()
		service, _ := newService(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":{"message":"Invalid credentials"}}`))
		}))

		err := service.Login(context.Background(), "p@example.com", "wrong", true)
		require.Error(t, err)

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "Invalid credentials", authErr.Message)
		assert.False(t, service.IsAuthenticated())

		creds, err := store.Load()
		require.NoError(t, err)
		assert.Empty(t, creds.AccessToken)
	})

	t.Run("structurally invalid response is an auth error", func(t *testing.T) {
		service, _ := newService(t, NewMemoryStore(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success":true,"data":{"access_token":"only-half"}}`))
		}))

		err := service.Login(context.Background(), "p@example.com", "secret", true)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.False(t, service.IsAuthenticated())
	})

	t.Run("remember-me off keeps tokens out of the store", func(t *testing.T) {
		store := NewMemoryStore()
		service, _ := newService(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(loginOK))
		}))

		require.NoError(t, service.Login(context.Background(), "p@example.com", "secret", false))
		assert.True(t, service.IsAuthenticated())

		creds, err := store.Load()
		require.NoError(t, err)
		assert.Empty(t, creds.AccessToken)
		assert.Empty(t, creds.RefreshToken)
	})
}

func TestLogoutNeverBlockedByNetwork(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		PlayerID:     "123",
	}))

	service, _ := newService(t, store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Backend is down for logout
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"message":"boom"}}`))
	}))

	require.True(t, service.IsAuthenticated())
	require.NoError(t, service.Logout(context.Background()))
	assert.False(t, service.IsAuthenticated())
	assert.Empty(t, service.PlayerID())
}

func TestAvailabilityChecks(t *testing.T) {
	t.Run("reports backend answer", func(t *testing.T) {
		service, _ := newService(t, NewMemoryStore(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "taken@example.com", r.URL.Query().Get("email"))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success":true,"data":{"available":false}}`))
		}))

		available, err := service.CheckEmailAvailability(context.Background(), "taken@example.com")
		require.NoError(t, err)
		assert.False(t, available)
	})

	t.Run("network failure reports unavailable", func(t *testing.T) {
		server := httptest.NewServer(nil)
		server.Close()

		service, err := NewService(NewMemoryStore(), zerolog.Nop())
		require.NoError(t, err)
		service.UseClient(api.New(server.URL, service))

		available, err := service.CheckUsernameAvailability(context.Background(), "player")
		assert.Error(t, err)
		assert.False(t, available, "errors must never claim availability")
	})
}

func TestHydration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	store := NewFileStore(path)
	require.NoError(t, store.Save(Credentials{
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		PlayerID:       "123",
		ActiveWalletID: "w-2",
	}))

	// A fresh service sees the persisted session before anything else runs
	service, err := NewService(store, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, service.IsAuthenticated())
	assert.Equal(t, "123", service.PlayerID())
	assert.Equal(t, "w-2", service.ActiveWalletID())
}

func TestClearTokensKeepsWalletPreference(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(Credentials{
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		PlayerID:       "123",
		ActiveWalletID: "w-2",
	}))

	service, err := NewService(store, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, service.ClearTokens())
	assert.False(t, service.IsAuthenticated())
	assert.Equal(t, "w-2", service.ActiveWalletID())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	// Absent file loads as empty credentials
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, creds.AccessToken)

	require.NoError(t, store.Save(Credentials{AccessToken: "a", RefreshToken: "r"}))
	creds, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", creds.AccessToken)

	require.NoError(t, store.Clear())
	creds, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, creds.AccessToken)

	// Clearing an already-absent file is fine
	require.NoError(t, store.Clear())
}

func TestTokenClaims(t *testing.T) {
	expires := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "123",
		"exp": expires.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	store := NewMemoryStore()
	require.NoError(t, store.Save(Credentials{AccessToken: token, RefreshToken: "r"}))

	service, err := NewService(store, zerolog.Nop())
	require.NoError(t, err)

	claims, err := service.TokenClaims()
	require.NoError(t, err)
	assert.Equal(t, "123", claims.Subject)
	assert.Equal(t, expires.Unix(), claims.ExpiresAt.Unix())
}
