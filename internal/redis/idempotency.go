package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyTTL is how long a completed accept stays replayable.
	IdempotencyTTL = 24 * time.Hour

	// processingTTL bounds the reservation held while a request is in flight.
	processingTTL = 2 * time.Minute

	processingMarker = "processing"
)

// ErrInFlight means another request holding the same key is still running.
var ErrInFlight = errors.New("request with this idempotency key is still in progress")

// IdempotencyResult is the cached response of a completed request.
type IdempotencyResult struct {
	ResourceID string          `json:"resource_id"`
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// IdempotencyService lets clients retry accept safely: a repeated key replays
// the first response instead of tripping the duplicate-acceptance rule.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyService creates a new idempotency service.
func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

func (s *IdempotencyService) buildKey(scope, actorID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", scope, actorID, key)
}

// Check returns the cached result, (nil, nil) when the key is unknown, or
// ErrInFlight while the key is reserved.
func (s *IdempotencyService) Check(ctx context.Context, scope, actorID, key string) (*IdempotencyResult, error) {
	val, err := s.client.rdb.Get(ctx, s.buildKey(scope, actorID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == processingMarker {
		return nil, ErrInFlight
	}

	var result IdempotencyResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		s.logger.Error("failed to unmarshal idempotency result", zap.Error(err))
		return nil, fmt.Errorf("invalid cached result: %w", err)
	}

	s.logger.Debug("idempotency cache hit",
		zap.String("scope", scope),
		zap.String("actor_id", actorID),
		zap.String("resource_id", result.ResourceID),
	)

	return &result, nil
}

// Reserve takes the key with SET NX. It reports false when the key exists.
func (s *IdempotencyService) Reserve(ctx context.Context, scope, actorID, key string) (bool, error) {
	set, err := s.client.rdb.SetNX(ctx, s.buildKey(scope, actorID, key), processingMarker, processingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return set, nil
}

// CheckOrReserve returns the cached result if there is one, otherwise reserves
// the key and returns (nil, nil).
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, scope, actorID, key string) (*IdempotencyResult, error) {
	result, err := s.Check(ctx, scope, actorID, key)
	if err != nil || result != nil {
		return result, err
	}

	reserved, err := s.Reserve(ctx, scope, actorID, key)
	if err != nil {
		return nil, err
	}
	if !reserved {
		// lost the race: someone reserved or completed between GET and SETNX
		return s.Check(ctx, scope, actorID, key)
	}
	return nil, nil
}

// Store replaces the reservation with the completed result.
func (s *IdempotencyService) Store(ctx context.Context, scope, actorID, key string, result *IdempotencyResult) error {
	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := s.client.rdb.Set(ctx, s.buildKey(scope, actorID, key), data, IdempotencyTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Release drops a reservation so a failed request can be retried with the same key.
func (s *IdempotencyService) Release(ctx context.Context, scope, actorID, key string) error {
	redisKey := s.buildKey(scope, actorID, key)

	// only delete our own marker, never a stored result
	val, err := s.client.rdb.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if val != processingMarker {
		return nil
	}

	if err := s.client.rdb.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
