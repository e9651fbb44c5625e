// Package store persists bot users, manifest backups, and the APPX API
// directory in Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
)

const (
	keySubscribers = "subscribers" // SET. user ids of everyone who started the bot.
	keyPremium     = "premium"     // HASH. user id -> RFC 3339 expiry.
	keyBackups     = "backups"     // HASH per user. backup name -> serialized manifest.
	keyAppxAPIs    = "appx_apis"   // HASH. app name -> API base URL.
	keySeparator   = ":"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("store: not found")

// RedisStore implements interfaces.Store on a Redis backend.
type RedisStore struct {
	cl  *redis.Client
	log *logging.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int, log *logging.Logger) (*RedisStore, error) {
	cl := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := cl.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{cl: cl, log: log.WithComponent("store")}, nil
}

func backupKey(userID int64) string {
	return keyBackups + keySeparator + strconv.FormatInt(userID, 10)
}

// AddSubscriber records a user who started the bot. Adding an existing
// subscriber is a no-op.
func (s *RedisStore) AddSubscriber(ctx context.Context, userID int64) error {
	return s.cl.SAdd(ctx, keySubscribers, userID).Err()
}

// Subscribers returns every recorded user id.
func (s *RedisStore) Subscribers(ctx context.Context) ([]int64, error) {
	members, err := s.cl.SMembers(ctx, keySubscribers).Result()
	if err != nil {
		return nil, fmt.Errorf("subscribers: %w", err)
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.log.Warn("skipping malformed subscriber id", "value", m)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// SetPremium grants premium until the given time. Setting again
// overwrites the previous expiry.
func (s *RedisStore) SetPremium(ctx context.Context, userID int64, until time.Time) error {
	return s.cl.HSet(ctx, keyPremium, strconv.FormatInt(userID, 10), until.UTC().Format(time.RFC3339)).Err()
}

// IsPremium reports whether the user holds unexpired premium. An
// expired grant is removed on read.
func (s *RedisStore) IsPremium(ctx context.Context, userID int64) (bool, error) {
	field := strconv.FormatInt(userID, 10)
	raw, err := s.cl.HGet(ctx, keyPremium, field).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("premium lookup: %w", err)
	}

	until, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.log.Warn("removing malformed premium expiry", "user", userID, "value", raw)
		s.cl.HDel(ctx, keyPremium, field)
		return false, nil
	}
	if time.Now().After(until) {
		s.cl.HDel(ctx, keyPremium, field)
		return false, nil
	}
	return true, nil
}

// RemovePremium revokes a premium grant. Revoking a missing grant is a
// no-op.
func (s *RedisStore) RemovePremium(ctx context.Context, userID int64) error {
	return s.cl.HDel(ctx, keyPremium, strconv.FormatInt(userID, 10)).Err()
}

// SaveBackup stores a manifest under the user's backup name. The
// manifest is encrypted at rest; saving under an existing name
// overwrites it.
func (s *RedisStore) SaveBackup(ctx context.Context, userID int64, name string, m *manifest.Manifest) error {
	return s.cl.HSet(ctx, backupKey(userID), name, m.Encrypt().Serialize()).Err()
}

// ListBackups returns the user's backup names.
func (s *RedisStore) ListBackups(ctx context.Context, userID int64) ([]string, error) {
	names, err := s.cl.HKeys(ctx, backupKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return names, nil
}

// GetBackup loads and decrypts one of the user's backups.
func (s *RedisStore) GetBackup(ctx context.Context, userID int64, name string) (*manifest.Manifest, error) {
	raw, err := s.cl.HGet(ctx, backupKey(userID), name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backup: %w", err)
	}
	return manifest.Parse(name, raw).Decrypt(), nil
}

// SetAppxAPI maps an APPX app name to its API base URL.
func (s *RedisStore) SetAppxAPI(ctx context.Context, appName, apiURL string) error {
	return s.cl.HSet(ctx, keyAppxAPIs, appName, apiURL).Err()
}

// GetAppxAPI resolves an APPX app name to its API base URL.
func (s *RedisStore) GetAppxAPI(ctx context.Context, appName string) (string, error) {
	u, err := s.cl.HGet(ctx, keyAppxAPIs, appName).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("appx api lookup: %w", err)
	}
	return u, nil
}

// ListAppxAPIs returns the whole APPX API directory.
func (s *RedisStore) ListAppxAPIs(ctx context.Context) (map[string]string, error) {
	m, err := s.cl.HGetAll(ctx, keyAppxAPIs).Result()
	if err != nil {
		return nil, fmt.Errorf("list appx apis: %w", err)
	}
	return m, nil
}

// DeleteAppxAPI removes an app from the directory.
func (s *RedisStore) DeleteAppxAPI(ctx context.Context, appName string) error {
	return s.cl.HDel(ctx, keyAppxAPIs, appName).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.cl.Close()
}

var _ interfaces.Store = (*RedisStore)(nil)
