// Package oauth performs the marketplace OAuth grants.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"meliseller/internal/domain"
)

// Client performs the marketplace OAuth grants.
type Client struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	HTTPClient   *http.Client
}

type TokenResponse struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	RefreshToken string
	Scope        string
	UserID       int64
}

func (c *Client) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return context.WithValue(ctx, oauth2.HTTPClient, httpClient)
}

// BuildAuthURL returns the provider authorization URL. state is optional.
func (c *Client) BuildAuthURL(state string) (string, error) {
	if c.ClientID == "" || c.AuthURL == "" || c.RedirectURI == "" {
		return "", fmt.Errorf("marketplace oauth config missing")
	}
	return c.config().AuthCodeURL(state), nil
}

// ExchangeCode trades a single-use authorization code for a token pair.
// A rejection is returned as *domain.ExchangeError with the provider body.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	if c.TokenURL == "" {
		return TokenResponse{}, fmt.Errorf("marketplace token url missing")
	}
	tok, err := c.config().Exchange(c.withHTTPClient(ctx), strings.TrimSpace(code))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return TokenResponse{}, &domain.ExchangeError{Status: statusOf(retrieveErr), Payload: string(retrieveErr.Body)}
		}
		return TokenResponse{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return fromToken(tok), nil
}

// Refresh mints a new access token from refreshToken. A rejection is
// returned as *domain.RefreshError with the provider body. When the
// provider does not rotate, the response carries refreshToken back.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	if c.TokenURL == "" {
		return TokenResponse{}, &domain.RefreshError{Err: fmt.Errorf("marketplace token url missing")}
	}
	src := c.config().TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return TokenResponse{}, &domain.RefreshError{Status: statusOf(retrieveErr), Payload: string(retrieveErr.Body)}
		}
		return TokenResponse{}, &domain.RefreshError{Err: err}
	}
	return fromToken(tok), nil
}

func statusOf(err *oauth2.RetrieveError) int {
	if err.Response == nil {
		return 0
	}
	return err.Response.StatusCode
}

func fromToken(tok *oauth2.Token) TokenResponse {
	resp := TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		RefreshToken: tok.RefreshToken,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if id, ok := tok.Extra("user_id").(float64); ok {
		resp.UserID = int64(id)
	}
	return resp
}
