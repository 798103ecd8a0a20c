// Package redis backs the cart session cache with Redis so that carts survive restarts and
// are shared between instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/config"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const defaultKeyPrefix = "storefront:cart:"

// SessionStore implements repositories.CartSessionStore on a Redis string per cart key.
type SessionStore struct {
	client goredis.UniversalClient
	prefix string
}

var _ repositories.CartSessionStore = (*SessionStore)(nil)

// NewClient dials Redis and pings it once so misconfiguration fails at startup.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis: address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewSessionStore wraps client. An empty prefix uses the default.
func NewSessionStore(client goredis.UniversalClient, prefix string) (*SessionStore, error) {
	if client == nil {
		return nil, errors.New("redis session store: client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	return &SessionStore{client: client, prefix: prefix}, nil
}

func (s *SessionStore) Get(ctx context.Context, key string) ([]domain.CartItem, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis session store: get %s: %w", key, err)
	}
	items, err := decodeItems(raw)
	if err != nil {
		return nil, false, fmt.Errorf("redis session store: decode %s: %w", key, err)
	}
	return items, true, nil
}

func (s *SessionStore) Put(ctx context.Context, key string, items []domain.CartItem, ttl time.Duration) error {
	raw, err := encodeItems(items)
	if err != nil {
		return fmt.Errorf("redis session store: encode %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis session store: set %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis session store: del %s: %w", key, err)
	}
	return nil
}

// Ping is used by the readiness probe.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type itemRecord struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Category   string `json:"category,omitempty"`
	Quantity   int    `json:"quantity"`
}

func encodeItems(items []domain.CartItem) ([]byte, error) {
	records := make([]itemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, itemRecord{
			ProductID:  item.Product.ID,
			Name:       item.Product.Name,
			PriceCents: item.Product.PriceCents,
			ImageURL:   item.Product.ImageURL,
			Category:   string(item.Product.Category),
			Quantity:   item.Quantity,
		})
	}
	return json.Marshal(records)
}

func decodeItems(raw []byte) ([]domain.CartItem, error) {
	var records []itemRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	items := make([]domain.CartItem, 0, len(records))
	for _, r := range records {
		items = append(items, domain.CartItem{
			Product: domain.ProductSnapshot{
				ID:         r.ProductID,
				Name:       r.Name,
				PriceCents: r.PriceCents,
				ImageURL:   r.ImageURL,
				Category:   domain.Category(r.Category),
			},
			Quantity: r.Quantity,
		})
	}
	return items, nil
}
