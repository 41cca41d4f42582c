package store

import (
	"context"

	"meliseller/internal/domain"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// TokenStore persists the credential pair across restarts. Load returns
// empty fields (and no error) when nothing has been saved yet; Save
// upserts both keys.
type TokenStore interface {
	Load(ctx context.Context) (domain.Credentials, error)
	Save(ctx context.Context, creds domain.Credentials) error
}
