package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"meliseller/internal/config"
	"meliseller/internal/domain"
	"meliseller/internal/service/credentials"
	"meliseller/internal/store/memory"
	"meliseller/internal/tools"
)

const (
	ServerName      = "meliseller"
	ServerVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
	oauthStateTTL   = 10 * time.Minute
	maxRPCBodyBytes = 1 << 20
)

// Credentials is the credential manager as seen by the HTTP surface.
type Credentials interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (domain.Credentials, error)
	Refresh(ctx context.Context) error
	Status() credentials.Status
}

type ToolService interface {
	Catalog() []tools.Tool
	Call(ctx context.Context, req domain.ToolRequest) tools.Result
}

type DigestRunner interface {
	Run(ctx context.Context) (domain.Digest, error)
}

type Server struct {
	cfg    config.Config
	creds  Credentials
	tools  ToolService
	digest DigestRunner
	states *memory.States
	log    logrus.FieldLogger
}

// NewServer builds the HTTP surface. digest may be nil when no transport
// is configured.
func NewServer(cfg config.Config, creds Credentials, toolService ToolService, digest DigestRunner, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:    cfg,
		creds:  creds,
		tools:  toolService,
		digest: digest,
		states: memory.NewStates(oauthStateTTL),
		log:    log.WithField("component", "http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/admin/login", s.handleAdminLogin)

	r.Get("/oauth/start", s.handleOAuthStart)
	r.Get("/oauth/callback", s.handleOAuthCallback)

	r.Group(func(rpc chi.Router) {
		if s.cfg.RPCRequireAuth {
			rpc.Use(s.requireAdmin)
		}
		rpc.Post("/rpc", s.handleRPC)
		rpc.Post("/mcp", s.handleRPC)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(s.requireAdmin)
		protected.Get("/admin/credentials", s.handleCredentialStatus)
		protected.Post("/admin/refresh", s.handleRefresh)
		protected.Post("/admin/digest", s.handleDigest)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"time":      time.Now().UTC().Format(time.RFC3339),
		"connected": s.creds.Status().Connected,
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminPassword == "" || s.cfg.JWTSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "admin login is not configured")
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username != s.cfg.AdminUsername || req.Password != s.cfg.AdminPassword {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.signAdminToken(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create admin token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
		"type":       "Bearer",
	})
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	authURL := s.creds.AuthorizationURL(state)
	if authURL == "" {
		writeError(w, http.StatusInternalServerError, "marketplace oauth is not configured")
		return
	}
	s.states.Save(state)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":    state,
		"auth_url": authURL,
	})
}

// handleOAuthCallback accepts redirects without a state too: codes pasted
// from the default redirect page never carry one.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if state != "" {
		if err := s.states.Consume(state); err != nil {
			writeError(w, http.StatusBadRequest, "invalid oauth state")
			return
		}
	}

	if _, err := s.creds.Exchange(r.Context(), code); err != nil {
		var exchangeErr *domain.ExchangeError
		if errors.As(err, &exchangeErr) {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":    "token exchange rejected",
				"provider": json.RawMessage(providerPayload(exchangeErr.Payload)),
			})
			return
		}
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	st := s.creds.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected":     st.Connected,
		"persist_error": st.PersistError,
	})
}

func providerPayload(raw string) string {
	if json.Valid([]byte(raw)) {
		return raw
	}
	b, _ := json.Marshal(raw)
	return string(b)
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.creds.Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.creds.Refresh(credentials.WithTrigger(r.Context(), "admin"))
	s.log.WithFields(logrus.Fields{
		"admin":     adminSubject(r.Context()),
		"refreshed": err == nil,
	}).Info("admin refresh")
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"refreshed": true,
			"status":    s.creds.Status(),
		})
	case errors.Is(err, domain.ErrNoRefreshToken):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	if s.digest == nil {
		writeError(w, http.StatusServiceUnavailable, "digest transport is not configured")
		return
	}
	d, err := s.digest.Run(r.Context())
	s.log.WithFields(logrus.Fields{
		"admin":  adminSubject(r.Context()),
		"run_id": d.RunID,
	}).Info("admin digest")
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"run_id": d.RunID,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  d.RunID,
		"subject": d.Subject,
	})
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
