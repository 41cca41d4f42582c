package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"meliseller/internal/domain"
	"meliseller/internal/security/secretbox"
	storepkg "meliseller/internal/store"
)

const schema = `create table if not exists oauth_tokens (
	key        text primary key,
	value      text not null,
	updated_at timestamptz not null default now()
)`

const undefinedTable = "42P01"

// Store keeps the token pair in a two-row key/value table.
type Store struct {
	db     *sql.DB
	sealer secretbox.Sealer
}

func NewStore(databaseURL string, sealer secretbox.Sealer) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewStoreFromDB(db, sealer), nil
}

func NewStoreFromDB(db *sql.DB, sealer secretbox.Sealer) *Store {
	if sealer == nil {
		sealer = secretbox.Plain{}
	}
	return &Store{db: db, sealer: sealer}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create oauth_tokens: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (domain.Credentials, error) {
	rows, err := s.db.QueryContext(ctx,
		`select key, value from oauth_tokens where key in ($1, $2)`,
		storepkg.KeyAccessToken, storepkg.KeyRefreshToken,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return domain.Credentials{}, nil
		}
		return domain.Credentials{}, fmt.Errorf("query oauth_tokens: %w", err)
	}
	defer rows.Close()

	var creds domain.Credentials
	for rows.Next() {
		var key, stored string
		if err := rows.Scan(&key, &stored); err != nil {
			return domain.Credentials{}, err
		}
		value, err := s.sealer.Open(stored)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("open %s: %w", key, err)
		}
		switch key {
		case storepkg.KeyAccessToken:
			creds.AccessToken = value
		case storepkg.KeyRefreshToken:
			creds.RefreshToken = value
		}
	}
	return creds, rows.Err()
}

func (s *Store) Save(ctx context.Context, creds domain.Credentials) error {
	access, err := s.sealer.Seal(creds.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(creds.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range [][2]string{
		{storepkg.KeyAccessToken, access},
		{storepkg.KeyRefreshToken, refresh},
	} {
		if _, err := tx.ExecContext(ctx,
			`insert into oauth_tokens(key, value, updated_at)
			 values ($1, $2, now())
			 on conflict (key) do update
			 set value = excluded.value,
			     updated_at = now()`,
			row[0], row[1],
		); err != nil {
			return fmt.Errorf("upsert %s: %w", row[0], err)
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
