package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scratch holds per-user values that outlive a single flow: the patient code
// chosen for the next booking and the relation of the family member most
// recently registered.
type Scratch interface {
	// RememberPatientCode stores code only when none is cached and reports
	// whether it was stored.
	RememberPatientCode(ctx context.Context, id, code string) (bool, error)
	// SetPatientCode overwrites any cached code.
	SetPatientCode(ctx context.Context, id, code string) error
	PatientCode(ctx context.Context, id string) (string, error)
	SetRelation(ctx context.Context, id, relation string) error
	Relation(ctx context.Context, id string) (string, error)
	// Clear drops every scratch value for id.
	Clear(ctx context.Context, id string) error
}

type scratchEntry struct {
	patientCode string
	relation    string
}

// MemoryScratch is the in-process Scratch.
type MemoryScratch struct {
	mu      sync.Mutex
	entries map[string]scratchEntry
}

func NewMemoryScratch() *MemoryScratch {
	return &MemoryScratch{entries: make(map[string]scratchEntry)}
}

func (m *MemoryScratch) RememberPatientCode(_ context.Context, id, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	if e.patientCode != "" {
		return false, nil
	}
	e.patientCode = code
	m.entries[id] = e
	return true, nil
}

func (m *MemoryScratch) SetPatientCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.patientCode = code
	m.entries[id] = e
	return nil
}

func (m *MemoryScratch) PatientCode(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id].patientCode, nil
}

func (m *MemoryScratch) SetRelation(_ context.Context, id, relation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.relation = relation
	m.entries[id] = e
	return nil
}

func (m *MemoryScratch) Relation(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id].relation, nil
}

func (m *MemoryScratch) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

const (
	patientCodeKeyPrefix = "labbot:patient_code:"
	relationKeyPrefix    = "labbot:relation:"
)

// RedisScratch stores scratch values as plain strings. First-write-wins uses SETNX.
type RedisScratch struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisScratch(client *redis.Client, ttl time.Duration) *RedisScratch {
	return &RedisScratch{client: client, ttl: ttl}
}

func (s *RedisScratch) RememberPatientCode(ctx context.Context, id, code string) (bool, error) {
	ok, err := s.client.SetNX(ctx, patientCodeKeyPrefix+id, code, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("scratch: setnx patient code: %w", err)
	}
	return ok, nil
}

func (s *RedisScratch) SetPatientCode(ctx context.Context, id, code string) error {
	if err := s.client.Set(ctx, patientCodeKeyPrefix+id, code, s.ttl).Err(); err != nil {
		return fmt.Errorf("scratch: set patient code: %w", err)
	}
	return nil
}

func (s *RedisScratch) PatientCode(ctx context.Context, id string) (string, error) {
	return s.get(ctx, patientCodeKeyPrefix+id)
}

func (s *RedisScratch) SetRelation(ctx context.Context, id, relation string) error {
	if err := s.client.Set(ctx, relationKeyPrefix+id, relation, s.ttl).Err(); err != nil {
		return fmt.Errorf("scratch: set relation: %w", err)
	}
	return nil
}

func (s *RedisScratch) Relation(ctx context.Context, id string) (string, error) {
	return s.get(ctx, relationKeyPrefix+id)
}

func (s *RedisScratch) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, patientCodeKeyPrefix+id, relationKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("scratch: clear: %w", err)
	}
	return nil
}

func (s *RedisScratch) get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scratch: get: %w", err)
	}
	return val, nil
}
