// Package tools dispatches tool calls to the reports and the credential
// manager. Every call ends in text: errors are rendered, never returned.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"meliseller/internal/domain"
	"meliseller/internal/metrics"
	"meliseller/internal/service/credentials"
	"meliseller/internal/service/report"
)

type Credentials interface {
	Exchange(ctx context.Context, code string) (domain.Credentials, error)
	AuthorizationURL(state string) string
	Status() credentials.Status
}

type Reports interface {
	Sales(ctx context.Context, limit int) (report.SalesReport, error)
	Listings(ctx context.Context) (report.ListingsReport, error)
	Questions(ctx context.Context, onlyUnanswered bool) (report.QuestionsReport, error)
	Reputation(ctx context.Context) (domain.SellerProfile, error)
	Summary(ctx context.Context) (report.Summary, error)
	Visits(ctx context.Context) (report.VisitsRanking, error)
	Conversion(ctx context.Context) (report.ConversionRanking, error)
}

type DigestRunner interface {
	Run(ctx context.Context) (domain.Digest, error)
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

func text(s string) Result {
	return Result{Content: []Content{{Type: "text", Text: s}}}
}

type Service struct {
	creds   Credentials
	reports Reports
	render  *report.Renderer
	digest  DigestRunner
	log     logrus.FieldLogger
}

// NewService wires the dispatcher. digest may be nil, in which case the
// send_digest tool reports that no transport is configured.
func NewService(creds Credentials, reports Reports, render *report.Renderer, digest DigestRunner, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		creds:   creds,
		reports: reports,
		render:  render,
		digest:  digest,
		log:     log.WithField("component", "tools"),
	}
}

func (s *Service) Catalog() []Tool {
	return Catalog()
}

// Call runs one tool. The returned Result always carries text; failures
// set IsError and explain how to reconnect the account.
func (s *Service) Call(ctx context.Context, req domain.ToolRequest) Result {
	start := time.Now()
	out, err := s.dispatch(ctx, req)
	if errors.Is(err, errUnknownTool) {
		return text(fmt.Sprintf("Unknown tool: %s", req.Name))
	}
	metrics.RecordToolCall(req.Name, err)

	log := s.log.WithFields(logrus.Fields{"tool": req.Name, "duration": time.Since(start).String()})
	if err != nil {
		log.WithError(err).Warn("tool call failed")
		res := text(s.errorText(req.Name, err))
		res.IsError = true
		return res
	}
	log.Debug("tool call done")
	return text(out)
}

var errUnknownTool = errors.New("unknown tool")

func (s *Service) dispatch(ctx context.Context, req domain.ToolRequest) (string, error) {
	args := req.Arguments
	switch req.Name {
	case ToolConnectAccount:
		return s.connect(ctx, stringArg(args, "code"))
	case ToolGetSales:
		rep, err := s.reports.Sales(ctx, intArg(args, "limit"))
		if err != nil {
			return "", err
		}
		return s.render.Sales(rep), nil
	case ToolGetListings:
		rep, err := s.reports.Listings(ctx)
		if err != nil {
			return "", err
		}
		return s.render.Listings(rep), nil
	case ToolGetQuestions:
		rep, err := s.reports.Questions(ctx, boolArg(args, "only_unanswered"))
		if err != nil {
			return "", err
		}
		return s.render.Questions(rep), nil
	case ToolGetReputation:
		p, err := s.reports.Reputation(ctx)
		if err != nil {
			return "", err
		}
		return s.render.Reputation(p), nil
	case ToolBusinessSummary:
		sum, err := s.reports.Summary(ctx)
		if err != nil {
			return "", err
		}
		return s.render.Summary(sum), nil
	case ToolGetVisits:
		v, err := s.reports.Visits(ctx)
		if err != nil {
			return "", err
		}
		return s.render.Visits(v), nil
	case ToolGetConversion:
		c, err := s.reports.Conversion(ctx)
		if err != nil {
			return "", err
		}
		return s.render.Conversion(c), nil
	case ToolSendDigest:
		return s.sendDigest(ctx)
	case ToolAccountStatus:
		return s.accountStatus(), nil
	default:
		return "", errUnknownTool
	}
}

func (s *Service) connect(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", errors.New("the code argument is required")
	}
	if _, err := s.creds.Exchange(ctx, strings.TrimSpace(code)); err != nil {
		return "", err
	}
	msg := "✅ Account connected!\n\nThe access token lasts 6 hours and is refreshed automatically while the server runs.\n\nYou can now ask about sales, listings, questions and more."
	if st := s.creds.Status(); st.PersistError != "" {
		msg += "\n\n⚠️ The token could not be saved (" + st.PersistError + "). It works until the server restarts."
	}
	return msg, nil
}

func (s *Service) sendDigest(ctx context.Context) (string, error) {
	if s.digest == nil {
		return "No digest transport is configured.", nil
	}
	d, err := s.digest.Run(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📧 Digest sent (run %s): %s", d.RunID, d.Subject), nil
}

func (s *Service) accountStatus() string {
	st := s.creds.Status()
	var b strings.Builder
	if st.Connected {
		b.WriteString("🔌 Account connected\n")
	} else {
		b.WriteString("🔌 Account not connected\n")
	}
	fmt.Fprintf(&b, "Refresh token held: %s\n", yesNo(st.HasRefreshToken))
	if !st.ConnectedAt.IsZero() {
		fmt.Fprintf(&b, "Connected at: %s\n", st.ConnectedAt.UTC().Format(time.RFC3339))
	}
	if !st.LastRefresh.IsZero() {
		fmt.Fprintf(&b, "Last refresh: %s\n", st.LastRefresh.UTC().Format(time.RFC3339))
	}
	if st.PersistError != "" {
		fmt.Fprintf(&b, "⚠️ Token store write failed: %s\n", st.PersistError)
	}
	if !st.Connected {
		if u := s.creds.AuthorizationURL(""); u != "" {
			fmt.Fprintf(&b, "\nAuthorize here and then use '%s':\n%s\n", ToolConnectAccount, u)
		}
	}
	return b.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (s *Service) errorText(tool string, err error) string {
	authURL := s.creds.AuthorizationURL("")
	var exchangeErr *domain.ExchangeError
	if tool == ToolConnectAccount && errors.As(err, &exchangeErr) {
		msg := gjson.Get(exchangeErr.Payload, "message").String()
		if msg == "" {
			msg = exchangeErr.Payload
		}
		return fmt.Sprintf("❌ Could not connect: %s\n\nThe code may have expired. Get a new one by opening:\n%s", msg, authURL)
	}
	return fmt.Sprintf("❌ Error: %s\n\nIf the token expired, get a new code at:\n%s\n\nThen use the '%s' tool with that code.", err, authURL, ToolConnectAccount)
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
