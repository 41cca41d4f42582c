package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meliseller/internal/config"
	"meliseller/internal/domain"
	"meliseller/internal/integrations/mailer"
	"meliseller/internal/service/credentials"
	"meliseller/internal/service/digest"
	"meliseller/internal/service/marketplace"
	"meliseller/internal/service/oauth"
	"meliseller/internal/service/report"
	"meliseller/internal/store/memory"
	"meliseller/internal/tools"
)

// fakeProvider serves the token endpoint and the seller resources. The
// first access token it issues is rejected with a body-level marker.
type fakeProvider struct {
	refreshes atomic.Int32
	exchanges atomic.Int32
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/token" {
		p.token(w, r)
		return
	}
	switch r.Header.Get("Authorization") {
	case "Bearer access_2":
	case "Bearer access_1":
		_, _ = w.Write([]byte(`{"message":"invalid_token","error":"invalid_token","status":401,"cause":[]}`))
		return
	default:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"missing token","error":"unauthorized","status":401}`))
		return
	}

	var body string
	switch {
	case r.URL.Path == "/orders/search":
		body = `{"results":[
			{"id":1,"status":"paid","total_amount":1000,"order_items":[{"item":{"id":"MLA1","title":"Mochila"}}]},
			{"id":2,"status":"cancelled","total_amount":500,"order_items":[{"item":{"id":"MLA2","title":"Buzo"}}]}]}`
	case r.URL.Path == "/users/42/items/search":
		body = `{"results":["MLA1","MLA2"],"paging":{"total":2}}`
	case r.URL.Path == "/items":
		body = `[{"code":200,"body":{"id":"MLA1","title":"Mochila","status":"active","sold_quantity":5}},
			{"code":200,"body":{"id":"MLA2","title":"Buzo","status":"active","sold_quantity":0}}]`
	case r.URL.Path == "/items/MLA1/visits/time_window":
		body = `{"item_id":"MLA1","total_visits":100}`
	case r.URL.Path == "/items/MLA2/visits/time_window":
		body = `{"item_id":"MLA2","results":[]}`
	case r.URL.Path == "/questions/search":
		body = `{"questions":[{"id":7,"status":"UNANSWERED","text":"Hay talle 4?"}]}`
	case r.URL.Path == "/users/42":
		body = `{"id":42,"nickname":"NOOR","seller_reputation":{"level_id":"5_green","transactions":{"completed":340,"canceled":2}}}`
	default:
		w.WriteHeader(http.StatusNotFound)
		body = `{"message":"resource not found","error":"not_found","status":404}`
	}
	_, _ = w.Write([]byte(body))
}

func (p *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		p.exchanges.Add(1)
		if r.Form.Get("code") != "TG-good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Error validating grant. Your authorization code or refresh token may be expired or it was already used","error":"invalid_grant","status":400}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"access_1","token_type":"Bearer","expires_in":21600,"refresh_token":"refresh_1","user_id":42}`))
	case "refresh_token":
		p.refreshes.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"access_2","token_type":"Bearer","expires_in":21600,"user_id":42}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

type mailbox struct {
	mu   sync.Mutex
	keys []string
}

func (m *mailbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.keys = append(m.keys, r.Header.Get("Idempotency-Key"))
	m.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func TestE2E_ConnectRefreshAndReports(t *testing.T) {
	provider := &fakeProvider{}
	providerSrv := httptest.NewServer(provider)
	defer providerSrv.Close()
	box := &mailbox{}
	mailSrv := httptest.NewServer(box)
	defer mailSrv.Close()

	cfg := config.Config{
		AdminUsername: "admin",
		AdminPassword: "pw",
		JWTSecret:     "jwt-secret",
	}
	logger, _ := test.NewNullLogger()

	grants := &oauth.Client{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      providerSrv.URL + "/authorization",
		TokenURL:     providerSrv.URL + "/oauth/token",
		RedirectURI:  "http://localhost/oauth/callback",
	}
	tokens := memory.NewStore()
	manager := credentials.NewManager(grants, tokens, logger)
	gateway := marketplace.NewGateway(manager, marketplace.Options{BaseURL: providerSrv.URL, Timeout: 2 * time.Second}, logger)
	engine := report.NewEngine(marketplace.NewClient(gateway, "42"), logger)
	renderer := report.NewRenderer("es-AR", "ARS", "Noor Kids")
	mail := mailer.NewClient(mailer.Config{URL: mailSrv.URL, From: "bot@shop.test", To: "owner@shop.test"})
	digests := digest.NewService(engine, renderer, digest.MultiNotifier{mail}, logger)
	toolService := tools.NewService(manager, engine, renderer, digests, logger)

	api := httptest.NewServer(NewServer(cfg, manager, toolService, digests, logger).Router())
	defer api.Close()
	client := &http.Client{Timeout: 5 * time.Second}

	// Handshake
	initResp := postJSON(t, client, api.URL+"/rpc", rpcCall(1, "initialize", nil), "")
	result := objField(t, initResp, "result")
	assert.Equal(t, protocolVersion, strField(t, result, "protocolVersion"))

	listResp := postJSON(t, client, api.URL+"/mcp", rpcCall(2, "tools/list", nil), "")
	toolsList, _ := objField(t, listResp, "result")["tools"].([]interface{})
	assert.Len(t, toolsList, len(tools.Catalog()))

	// Not connected yet: the error text points at the authorization URL.
	text, isErr := callTool(t, client, api.URL, tools.ToolBusinessSummary, nil)
	assert.True(t, isErr)
	assert.Contains(t, text, providerSrv.URL+"/authorization")

	// A rejected code surfaces the provider message.
	text, isErr = callTool(t, client, api.URL, tools.ToolConnectAccount, map[string]interface{}{"code": "TG-bad"})
	assert.True(t, isErr)
	assert.Contains(t, text, "Error validating grant")

	// OAuth start -> callback
	startResp := getJSON(t, client, api.URL+"/oauth/start", "")
	state := strField(t, startResp, "state")
	require.NotEmpty(t, state)
	assert.Contains(t, strField(t, startResp, "auth_url"), "state="+state)
	callback := getJSON(t, client, fmt.Sprintf("%s/oauth/callback?state=%s&code=%s", api.URL, state, "TG-good"), "")
	assert.True(t, boolField(callback, "connected"))
	assert.Equal(t, "refresh_1", mustLoad(t, tokens).RefreshToken)

	// The first token is rejected once: one refresh, one retry.
	text, isErr = callTool(t, client, api.URL, tools.ToolGetReputation, nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "5_green")
	assert.Equal(t, int32(1), provider.refreshes.Load())
	persisted := mustLoad(t, tokens)
	assert.Equal(t, "access_2", persisted.AccessToken)
	assert.Equal(t, "refresh_1", persisted.RefreshToken)

	text, isErr = callTool(t, client, api.URL, tools.ToolBusinessSummary, nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "Paid orders: 1 of 2")
	assert.Contains(t, text, "1. Mochila (1 sales)")
	assert.Equal(t, int32(1), provider.refreshes.Load())

	text, isErr = callTool(t, client, api.URL, tools.ToolGetConversion, nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "Mochila — 5,0%")
	assert.Contains(t, text, "No traffic")

	text, _ = callTool(t, client, api.URL, "not_a_tool", nil)
	assert.Equal(t, "Unknown tool: not_a_tool", text)

	// Unknown methods answer with an empty object.
	unknown := postJSON(t, client, api.URL+"/rpc", rpcCall(9, "resources/list", nil), "")
	assert.Empty(t, objField(t, unknown, "result"))

	// Admin surface
	adminLoginResp := postJSON(t, client, api.URL+"/admin/login", map[string]string{
		"username": "admin",
		"password": "pw",
	}, "")
	adminToken := strField(t, adminLoginResp, "token")
	require.NotEmpty(t, adminToken)

	status := getJSON(t, client, api.URL+"/admin/credentials", adminToken)
	assert.True(t, boolField(status, "connected"))
	assert.True(t, boolField(status, "has_refresh_token"))

	refreshed := postJSON(t, client, api.URL+"/admin/refresh", map[string]interface{}{}, adminToken)
	assert.True(t, boolField(refreshed, "refreshed"))
	assert.Equal(t, int32(2), provider.refreshes.Load())

	digestResp := postJSON(t, client, api.URL+"/admin/digest", map[string]interface{}{}, adminToken)
	runID := strField(t, digestResp, "run_id")
	require.NotEmpty(t, runID)
	box.mu.Lock()
	assert.Equal(t, []string{runID}, box.keys)
	box.mu.Unlock()
}

func TestE2E_AdminRoutesRequireToken(t *testing.T) {
	logger, _ := test.NewNullLogger()
	manager := credentials.NewManager(&oauth.Client{}, memory.NewStore(), logger)
	srv := NewServer(config.Config{AdminUsername: "admin", AdminPassword: "pw", JWTSecret: "jwt-secret"}, manager, tools.NewService(manager, nil, nil, nil, logger), nil, logger)
	api := httptest.NewServer(srv.Router())
	defer api.Close()

	for _, path := range []string{"/admin/credentials", "/admin/refresh", "/admin/digest"} {
		method := http.MethodPost
		if path == "/admin/credentials" {
			method = http.MethodGet
		}
		req, err := http.NewRequest(method, api.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp, err := http.Post(api.URL+"/admin/login", "application/json", strings.NewReader(`{"username":"admin","password":"nope"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRPCParseErrorAndRequiredAuth(t *testing.T) {
	logger, _ := test.NewNullLogger()
	manager := credentials.NewManager(&oauth.Client{}, nil, logger)
	cfg := config.Config{AdminUsername: "admin", AdminPassword: "pw", JWTSecret: "jwt-secret"}
	api := httptest.NewServer(NewServer(cfg, manager, tools.NewService(manager, nil, nil, nil, logger), nil, logger).Router())
	defer api.Close()

	resp, err := http.Post(api.URL+"/rpc", "application/json", strings.NewReader(`{"method":`))
	require.NoError(t, err)
	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.NotNil(t, out.Error)
	assert.Equal(t, rpcParseError, out.Error.Code)

	resp, err = http.Post(api.URL+"/rpc", "application/json", strings.NewReader(`[{"jsonrpc":"2.0","id":1,"method":"tools/list"}]`))
	require.NoError(t, err)
	out = rpcResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.NotNil(t, out.Error)
	assert.Equal(t, rpcInvalidRequest, out.Error.Code)

	resp, err = http.Post(api.URL+"/rpc", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	cfg.RPCRequireAuth = true
	locked := httptest.NewServer(NewServer(cfg, manager, tools.NewService(manager, nil, nil, nil, logger), nil, logger).Router())
	defer locked.Close()
	resp, err = http.Post(locked.URL+"/rpc", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	logger, _ := test.NewNullLogger()
	manager := credentials.NewManager(&oauth.Client{}, nil, logger)
	api := httptest.NewServer(NewServer(config.Config{}, manager, tools.NewService(manager, nil, nil, nil, logger), nil, logger).Router())
	defer api.Close()

	health := getJSON(t, http.DefaultClient, api.URL+"/health", "")
	assert.Equal(t, "ok", strField(t, health, "status"))
	assert.False(t, boolField(health, "connected"))

	resp, err := http.Get(api.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func rpcCall(id int, method string, params interface{}) map[string]interface{} {
	body := map[string]interface{}{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		body["params"] = params
	}
	return body
}

func callTool(t *testing.T, client *http.Client, baseURL, name string, args map[string]interface{}) (string, bool) {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/rpc", rpcCall(3, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	}), "")
	result := objField(t, resp, "result")
	content, _ := result["content"].([]interface{})
	if len(content) != 1 {
		t.Fatalf("expected one content block, got %#v", result)
	}
	block, _ := content[0].(map[string]interface{})
	return strField(t, block, "text"), boolField(result, "isError")
}

func mustLoad(t *testing.T, s *memory.Store) domain.Credentials {
	t.Helper()
	creds, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load tokens: %v", err)
	}
	return creds
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}, bearerToken string) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var data map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&data)
		t.Fatalf("non-2xx status=%d body=%#v", resp.StatusCode, data)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func getJSON(t *testing.T, client *http.Client, url string, bearerToken string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var data map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&data)
		t.Fatalf("non-2xx status=%d body=%#v", resp.StatusCode, data)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func objField(t *testing.T, m map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	v, ok := m[key].(map[string]interface{})
	if !ok {
		t.Fatalf("expected object at %q, got %#v", key, m)
	}
	return v
}

func strField(t *testing.T, m map[string]interface{}, key string) string {
	t.Helper()
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolField(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
