// Package marketplace talks to the marketplace REST API on behalf of the
// connected seller.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"meliseller/internal/domain"
	"meliseller/internal/metrics"
)

const maxBodyBytes = 8 << 20

// Credentials is the part of the credential manager the gateway needs.
type Credentials interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRPS     float64
	HTTPClient *http.Client
}

// Gateway issues bearer-authenticated GETs. The provider reports an
// expired token in the body rather than the status code, so every body is
// classified before it is handed back.
type Gateway struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	log        logrus.FieldLogger
}

func NewGateway(creds Credentials, opts Options, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	g := &Gateway{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		creds:      creds,
		httpClient: httpClient,
		timeout:    timeout,
		log:        log.WithField("component", "gateway"),
	}
	if opts.MaxRPS > 0 {
		burst := int(opts.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), burst)
	}
	return g
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeAuth
	outcomeFailure
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeAuth:
		return "auth"
	default:
		return "failure"
	}
}

// response is the classified result of one attempt.
type response struct {
	kind outcome
	body json.RawMessage
	err  error
}

// Get fetches path. An authorization failure triggers exactly one refresh
// and one retry; a second authorization failure is ErrAuthStillInvalid.
func (g *Gateway) Get(ctx context.Context, path string) (json.RawMessage, error) {
	token := g.creds.AccessToken()
	if token == "" {
		return nil, domain.ErrNoToken
	}

	res := g.attempt(ctx, path, token)
	if res.kind != outcomeAuth {
		return res.body, res.err
	}

	g.log.WithField("path", path).Info("access token rejected, refreshing")
	if err := g.creds.Refresh(ctx); err != nil {
		return nil, err
	}

	res = g.attempt(ctx, path, g.creds.AccessToken())
	if res.kind == outcomeAuth {
		g.log.WithField("path", path).Warn("access token rejected again after refresh")
		return nil, domain.ErrAuthStillInvalid
	}
	return res.body, res.err
}

func (g *Gateway) attempt(ctx context.Context, path, token string) response {
	res := g.do(ctx, path, token)
	metrics.GatewayRequests.WithLabelValues(res.kind.String()).Inc()
	return res
}

func (g *Gateway) do(ctx context.Context, path, token string) response {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return response{kind: outcomeFailure, err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return response{kind: outcomeFailure, err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return response{kind: outcomeFailure, err: fmt.Errorf("GET %s: %w", path, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{kind: outcomeFailure, err: fmt.Errorf("read %s: %w", path, err)}
	}
	return classify(path, resp.StatusCode, raw)
}

var errInvalidJSON = errors.New("invalid JSON body")

func classify(path string, status int, raw []byte) response {
	if !gjson.ValidBytes(raw) {
		if status < 200 || status > 299 {
			return response{kind: outcomeFailure, err: &domain.GatewayError{Path: path, Status: status, Body: string(raw)}}
		}
		return response{kind: outcomeFailure, err: &domain.ParseError{Path: path, Body: string(raw), Err: errInvalidJSON}}
	}
	if isAuthFailure(raw) {
		return response{kind: outcomeAuth}
	}
	if status < 200 || status > 299 {
		return response{kind: outcomeFailure, err: &domain.GatewayError{Path: path, Status: status, Body: string(raw)}}
	}
	return response{kind: outcomeOK, body: json.RawMessage(raw)}
}

func isAuthFailure(raw []byte) bool {
	switch gjson.GetBytes(raw, "error").String() {
	case "unauthorized", "invalid_token":
		return true
	}
	return false
}
