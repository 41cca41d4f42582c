// Package mailer sends the digest through a transactional email HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"meliseller/internal/domain"
)

const htmlLayout = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family:Arial,Helvetica,sans-serif;font-size:14px;line-height:1.5">
%s</body></html>
`

type Config struct {
	URL     string
	APIKey  string
	From    string
	To      string
	Timeout time.Duration
}

type Client struct {
	url        string
	apiKey     string
	from       string
	to         []string
	httpClient *http.Client
	md         goldmark.Markdown
}

type message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// NewClient builds a mail client. To is a comma separated list of
// recipients.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var to []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		to:         to,
		httpClient: &http.Client{Timeout: timeout},
		md:         goldmark.New(goldmark.WithExtensions(extension.Linkify)),
	}
}

func (c *Client) Enabled() bool {
	return c.url != "" && c.from != "" && len(c.to) > 0
}

// Send posts one message. The run id is the idempotency key, so a resend
// of the same run is deduplicated by the provider. Transport failures are
// returned, never retried.
func (c *Client) Send(ctx context.Context, d domain.Digest) error {
	if !c.Enabled() {
		return nil
	}
	html, err := c.renderHTML(d)
	if err != nil {
		return err
	}
	body, err := json.Marshal(message{From: c.from, To: c.to, Subject: d.Subject, HTML: html, Text: d.Markdown})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", d.RunID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

func (c *Client) renderHTML(d domain.Digest) (string, error) {
	// Single newlines in the digest are line breaks.
	src := strings.ReplaceAll(d.Markdown, "\n", "  \n")
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render digest html: %w", err)
	}
	return fmt.Sprintf(htmlLayout, escapeTitle(d.Subject), buf.String()), nil
}

var titleEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeTitle(s string) string {
	return titleEscaper.Replace(s)
}
