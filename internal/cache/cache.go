package cache

import (
	"context"
	"strings"
	"time"
)

// DescriptionCache stores generated product descriptions keyed by product name.
type DescriptionCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type NoopDescriptionCache struct{}

func (NoopDescriptionCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopDescriptionCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

// DescriptionKey normalises a product name into a cache key.
func DescriptionKey(productName string) string {
	return "nexuspos:describe:" + strings.ToLower(strings.Join(strings.Fields(productName), " "))
}
