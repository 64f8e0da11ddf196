// Package credentials keeps provider API tokens in the integration_tokens
// table so operators can rotate them without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/sqlinline"
)

const (
	ProviderFal    = "fal"
	ProviderGemini = "gemini"
	ProviderN8N    = "n8n"
)

// Known lists the providers SetToken accepts.
var Known = []string{ProviderFal, ProviderGemini, ProviderN8N}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: read %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the configured value and falls back to the stored token.
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if v := strings.TrimSpace(configured); v != "" {
		return v, nil
	}
	return s.Token(ctx, provider)
}

// SetToken stores token for a known provider. props are kept alongside as JSON.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !isKnown(provider) {
		return fmt.Errorf("credentials: unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("credentials: %s token is required", provider)
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// Secrets resolves the provider tokens the process needs at startup.
type Secrets struct {
	Fal    string
	Gemini string
}

func (s *Store) LoadSecrets(ctx context.Context, cfg *infra.Config) (Secrets, error) {
	fal, err := s.Resolve(ctx, ProviderFal, cfg.FalAPIKey)
	if err != nil {
		return Secrets{}, err
	}
	gemini, err := s.Resolve(ctx, ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		return Secrets{}, err
	}
	return Secrets{Fal: fal, Gemini: gemini}, nil
}

func isKnown(provider string) bool {
	for _, p := range Known {
		if p == provider {
			return true
		}
	}
	return false
}
