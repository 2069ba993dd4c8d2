package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"facemask-api/internal/model"
)

// PredictionCache stores predictions keyed by the SHA-256 of the uploaded
// bytes, so a repeated upload skips preprocessing and inference. Keys are
// scoped by a namespace identifying the model settings that produced them.
type PredictionCache struct {
	client    redisv9.Cmdable
	ttl       time.Duration
	namespace string
}

func NewPredictionCache(client redisv9.Cmdable, ttl time.Duration, namespace string) *PredictionCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PredictionCache{
		client:    client,
		ttl:       ttl,
		namespace: namespace,
	}
}

// ModelNamespace fingerprints the artifact path and the settings pinned to
// it. Changing any of them starts a fresh key space.
func ModelNamespace(modelPath string, inputSize int, threshold float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%g", modelPath, inputSize, threshold)))
	return hex.EncodeToString(sum[:6])
}

func (c *PredictionCache) Get(ctx context.Context, digest string) (model.Prediction, bool, error) {
	raw, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return model.Prediction{}, false, nil
	}
	if err != nil {
		return model.Prediction{}, false, fmt.Errorf("redis get prediction failed: %w", err)
	}

	var pred model.Prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return model.Prediction{}, false, fmt.Errorf("unmarshal cached prediction failed: %w", err)
	}
	return pred, true, nil
}

func (c *PredictionCache) Set(ctx context.Context, digest string, pred model.Prediction) error {
	payload, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("marshal prediction cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(digest), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set prediction failed: %w", err)
	}
	return nil
}

func (c *PredictionCache) key(digest string) string {
	return fmt.Sprintf("facemask:prediction:%s:%s", c.namespace, digest)
}
