package cache

import (
	"context"
	"time"

	"autocare/backend/internal/domain"
)

// LotCache keeps resolved lot listings hot between item picks; entries are
// short-lived since lot balances move with every stock operation.
type LotCache interface {
	GetLots(ctx context.Context, key string) (*domain.LotOptions, bool, error)
	SetLots(ctx context.Context, key string, value *domain.LotOptions, ttl time.Duration) error
	InvalidateLots(ctx context.Context, key string) error
}

// SettingCache fronts the repository-backed shop settings (discount ceiling,
// supervisor credential hash) read on every gate check.
type SettingCache interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key string, value string, ttl time.Duration) error
	InvalidateSetting(ctx context.Context, key string) error
}

type Noop struct{}

func (Noop) GetLots(_ context.Context, _ string) (*domain.LotOptions, bool, error) {
	return nil, false, nil
}

func (Noop) SetLots(_ context.Context, _ string, _ *domain.LotOptions, _ time.Duration) error {
	return nil
}

func (Noop) InvalidateLots(_ context.Context, _ string) error {
	return nil
}

func (Noop) GetSetting(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (Noop) SetSetting(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

func (Noop) InvalidateSetting(_ context.Context, _ string) error {
	return nil
}
