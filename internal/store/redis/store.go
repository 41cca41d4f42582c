package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"meliseller/internal/domain"
	"meliseller/internal/security/secretbox"
	storepkg "meliseller/internal/store"
)

const defaultPrefix = "meliseller:token:"

// Store keeps each token in its own hash with value and updated_at fields.
type Store struct {
	client *goredis.Client
	sealer secretbox.Sealer
	prefix string
}

func NewStore(url string, sealer secretbox.Sealer) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewStoreFromClient(client, sealer), nil
}

func NewStoreFromClient(client *goredis.Client, sealer secretbox.Sealer) *Store {
	if sealer == nil {
		sealer = secretbox.Plain{}
	}
	return &Store{client: client, sealer: sealer, prefix: defaultPrefix}
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func (s *Store) Load(ctx context.Context) (domain.Credentials, error) {
	access, err := s.get(ctx, storepkg.KeyAccessToken)
	if err != nil {
		return domain.Credentials{}, err
	}
	refresh, err := s.get(ctx, storepkg.KeyRefreshToken)
	if err != nil {
		return domain.Credentials{}, err
	}
	return domain.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Store) get(ctx context.Context, name string) (string, error) {
	stored, err := s.client.HGet(ctx, s.key(name), "value").Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	value, err := s.sealer.Open(stored)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	return value, nil
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
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.key(storepkg.KeyAccessToken), "value", access, "updated_at", now)
		pipe.HSet(ctx, s.key(storepkg.KeyRefreshToken), "value", refresh, "updated_at", now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// UpdatedAt returns the last-updated timestamp recorded for a key.
func (s *Store) UpdatedAt(ctx context.Context, name string) (time.Time, error) {
	raw, err := s.client.HGet(ctx, s.key(name), "updated_at").Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}

func (s *Store) Close() error {
	return s.client.Close()
}
