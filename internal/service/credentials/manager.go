// Package credentials owns the marketplace OAuth token pair.
//
// The Manager is the only writer of the live credential state. Exchange
// and Refresh swap the pair under a lock and then write it through to the
// TokenStore before returning, so a crash after a successful refresh never
// loses the new token. A failed write leaves the new token usable in
// memory until restart; the failure is logged, counted and reported by
// Status.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"meliseller/internal/domain"
	"meliseller/internal/metrics"
	"meliseller/internal/service/oauth"
	storepkg "meliseller/internal/store"
)

const persistTimeout = 10 * time.Second

// Grants is the provider side of the OAuth flow.
type Grants interface {
	BuildAuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (oauth.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (oauth.TokenResponse, error)
}

type Status struct {
	Connected       bool      `json:"connected"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	ConnectedAt     time.Time `json:"connected_at,omitempty"`
	LastRefresh     time.Time `json:"last_refresh,omitempty"`
	PersistError    string    `json:"persist_error,omitempty"`
}

type Manager struct {
	grants Grants
	store  storepkg.TokenStore
	log    logrus.FieldLogger
	now    func() time.Time
	group  singleflight.Group

	mu          sync.RWMutex
	creds       domain.Credentials
	connectedAt time.Time
	lastRefresh time.Time
	persistErr  error
}

// NewManager returns a Manager with no tokens held. store may be nil, in
// which case tokens live in memory only.
func NewManager(grants Grants, store storepkg.TokenStore, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		grants: grants,
		store:  store,
		log:    log.WithField("component", "credentials"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads the persisted pair. seed is used only when the store holds
// nothing, and is then written through. When the store cannot be read the
// seed is held in memory only, so a newer stored pair is never overwritten.
func (m *Manager) Restore(ctx context.Context, seed domain.Credentials) error {
	var loaded domain.Credentials
	var loadErr error
	if m.store != nil {
		loaded, loadErr = m.store.Load(ctx)
		if loadErr != nil {
			m.log.WithError(loadErr).Warn("token store load failed, seed tokens will not be written back")
		}
	}

	if loaded.Empty() {
		if seed.Empty() {
			return loadErr
		}
		m.mu.Lock()
		m.creds = seed
		m.connectedAt = m.now()
		m.mu.Unlock()
		if loadErr == nil {
			m.persist(ctx, seed)
		}
		m.log.Info("credentials seeded from configuration")
		return loadErr
	}

	m.mu.Lock()
	m.creds = loaded
	m.connectedAt = m.now()
	m.mu.Unlock()
	m.log.WithField("has_refresh_token", loaded.RefreshToken != "").Info("credentials restored from token store")
	return nil
}

func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.AccessToken
}

func (m *Manager) Credentials() domain.Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds
}

// AuthorizationURL returns where the seller grants access. It returns ""
// when the OAuth client is not configured.
func (m *Manager) AuthorizationURL(state string) string {
	u, err := m.grants.BuildAuthURL(state)
	if err != nil {
		return ""
	}
	return u
}

// Exchange trades an authorization code for a new pair. Codes are single
// use, so a rejection is returned with the provider payload and never retried.
func (m *Manager) Exchange(ctx context.Context, code string) (domain.Credentials, error) {
	if code == "" {
		return domain.Credentials{}, fmt.Errorf("authorization code is required")
	}
	resp, err := m.grants.ExchangeCode(ctx, code)
	if err != nil {
		m.log.WithError(err).Warn("authorization code exchange failed")
		return domain.Credentials{}, err
	}

	next := domain.Credentials{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	m.mu.Lock()
	m.creds = next
	m.connectedAt = m.now()
	m.lastRefresh = time.Time{}
	m.mu.Unlock()

	m.persist(ctx, next)
	m.log.WithField("has_refresh_token", next.RefreshToken != "").Info("account connected")
	return next, nil
}

type triggerKey struct{}

// WithTrigger labels refreshes started with ctx for metrics and logs.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return "reactive"
}

// Refresh mints a new access token. Concurrent calls holding the same
// refresh token share one provider request.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	refreshToken := m.creds.RefreshToken
	m.mu.RUnlock()
	if refreshToken == "" {
		return domain.ErrNoRefreshToken
	}

	trigger := triggerFrom(ctx)
	_, err, shared := m.group.Do(refreshToken, func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx), refreshToken, trigger)
	})
	if shared {
		m.log.WithField("trigger", trigger).Debug("joined in-flight token refresh")
	}
	return err
}

func (m *Manager) refresh(ctx context.Context, refreshToken, trigger string) error {
	log := m.log.WithField("trigger", trigger)
	resp, err := m.grants.Refresh(ctx, refreshToken)
	metrics.RecordRefresh(trigger, err)
	if err != nil {
		log.WithError(err).Warn("token refresh failed")
		var refreshErr *domain.RefreshError
		if !errors.As(err, &refreshErr) {
			err = &domain.RefreshError{Err: err}
		}
		return err
	}

	m.mu.Lock()
	if m.creds.RefreshToken != refreshToken {
		m.mu.Unlock()
		log.Info("credentials replaced during refresh, discarding refreshed token")
		return nil
	}
	m.creds.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		m.creds.RefreshToken = resp.RefreshToken
	}
	m.lastRefresh = m.now()
	next := m.creds
	m.mu.Unlock()

	m.persist(ctx, next)
	log.WithField("rotated_refresh_token", resp.RefreshToken != "" && resp.RefreshToken != refreshToken).Info("access token refreshed")
	return nil
}

func (m *Manager) persist(ctx context.Context, creds domain.Credentials) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err := m.store.Save(ctx, creds)
	m.mu.Lock()
	m.persistErr = err
	m.mu.Unlock()
	if err != nil {
		metrics.TokenPersistFailures.Inc()
		m.log.WithError(err).Error("token store write failed; new token is held in memory only until restart")
	}
}

// PersistError returns the last token store write failure, if any.
func (m *Manager) PersistError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persistErr
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{
		Connected:       m.creds.AccessToken != "",
		HasRefreshToken: m.creds.RefreshToken != "",
		ConnectedAt:     m.connectedAt,
		LastRefresh:     m.lastRefresh,
	}
	if m.persistErr != nil {
		st.PersistError = m.persistErr.Error()
	}
	return st
}
