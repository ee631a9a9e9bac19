package addonmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/glizzus/adsp-host/internal/util"
	"github.com/redis/go-redis/v9"
)

const disabledAddonsKey = "adsp:disabled_addons"

// StateStore remembers which addons the host has disabled.
type StateStore interface {
	SetDisabled(ctx context.Context, addonID string, disabled bool) error
	IsDisabled(ctx context.Context, addonID string) (bool, error)
	Disabled(ctx context.Context) ([]string, error)
}

type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

var _ StateStore = (*RedisStateStore)(nil)

func (s *RedisStateStore) SetDisabled(ctx context.Context, addonID string, disabled bool) error {
	var err error
	if disabled {
		err = s.client.SAdd(ctx, disabledAddonsKey, addonID).Err()
	} else {
		err = s.client.SRem(ctx, disabledAddonsKey, addonID).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to set disabled=%t for addon %s: %w", disabled, addonID, err)
	}
	return nil
}

func (s *RedisStateStore) IsDisabled(ctx context.Context, addonID string) (bool, error) {
	disabled, err := s.client.SIsMember(ctx, disabledAddonsKey, addonID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check disabled state of addon %s: %w", addonID, err)
	}
	return disabled, nil
}

func (s *RedisStateStore) Disabled(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, disabledAddonsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list disabled addons: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

type MemoryStateStore struct {
	mu       sync.Mutex
	disabled map[string]struct{}
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		disabled: make(map[string]struct{}),
	}
}

var _ StateStore = (*MemoryStateStore)(nil)

func (s *MemoryStateStore) SetDisabled(_ context.Context, addonID string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if disabled {
		s.disabled[addonID] = struct{}{}
	} else {
		delete(s.disabled, addonID)
	}
	return nil
}

func (s *MemoryStateStore) IsDisabled(_ context.Context, addonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.disabled[addonID]
	return ok, nil
}

func (s *MemoryStateStore) Disabled(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.SortedKeys(s.disabled), nil
}
