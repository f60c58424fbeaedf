package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mealgen/internal/infra"
	"mealgen/internal/sqlinline"
)

const (
	ProviderQwen   = "qwen"
	ProviderOpenAI = "openai"
)

// Providers lists the integrations whose keys can be stored.
var Providers = []string{ProviderQwen, ProviderOpenAI}

// Key is a stored provider API key.
type Key struct {
	Token     string
	UpdatedAt time.Time
}

// Store keeps provider API keys in the provider_keys table so deployments
// can rotate them without touching the environment.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) QwenAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderQwen)
}

func (s *Store) OpenAIAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderOpenAI)
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	key, _, err := s.Lookup(ctx, provider)
	return key.Token, err
}

// Lookup returns the stored key for provider. ok is false when none is stored.
func (s *Store) Lookup(ctx context.Context, provider string) (key Key, ok bool, err error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider)
	if err := row.Scan(&key.Token, &key.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return Key{}, false, nil
		}
		return Key{}, false, err
	}
	key.Token = strings.TrimSpace(key.Token)
	return key, key.Token != "", nil
}

// Resolve prefers an explicit key (usually from the environment) and falls
// back to the stored token.
func (s *Store) Resolve(ctx context.Context, provider, explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	if s == nil || s.sql == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

func (s *Store) SetQwenAPIKey(ctx context.Context, key string) error {
	return s.SetToken(ctx, ProviderQwen, key)
}

func (s *Store) SetOpenAIAPIKey(ctx context.Context, key string) error {
	return s.SetToken(ctx, ProviderOpenAI, key)
}

// SetToken stores key for provider. Only the key's last four characters are
// kept in the properties column, for operators comparing deployments.
func (s *Store) SetToken(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	props, err := json.Marshal(map[string]string{"suffix": Mask(key)})
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderKey, provider, key, props)
	return err
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
