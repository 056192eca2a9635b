package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store caches session-scoped consultation artifacts (transcription,
// patient context, note) so repeated renders within a session skip the
// upstream calls. It is a cache only; Postgres remains the source of
// truth and a cache miss is not an error.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

func key(consultationID, field string) string {
	return fmt.Sprintf("consultation:%s:%s", consultationID, field)
}

func (s *Store) Set(ctx context.Context, consultationID, field, value string) error {
	return s.client.Set(ctx, key(consultationID, field), value, s.ttl).Err()
}

// Get returns the cached value and whether it was present.
func (s *Store) Get(ctx context.Context, consultationID, field string) (string, bool, error) {
	value, err := s.client.Get(ctx, key(consultationID, field)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Invalidate drops every cached field for one consultation.
func (s *Store) Invalidate(ctx context.Context, consultationID string, fields ...string) error {
	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		keys = append(keys, key(consultationID, field))
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Cached field names.
const (
	FieldTranscription  = "transcription"
	FieldPatientContext = "patient_context"
	FieldNote           = "note"
)
