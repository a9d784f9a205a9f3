package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// In-memory store doubles with a controllable clock, so window and TTL
// behavior is testable without a real backend or real sleeps.

var errStoreDown = errors.New("store down")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type memCounterStore struct {
	mu       sync.Mutex
	clock    *fakeClock
	counters map[string]*counterEntry
	failing  bool
}

func newMemCounterStore(clock *fakeClock) *memCounterStore {
	return &memCounterStore{clock: clock, counters: make(map[string]*counterEntry)}
}

func (s *memCounterStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errStoreDown
	}
	now := s.clock.Now()
	entry, ok := s.counters[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &counterEntry{}
		s.counters[key] = entry
	}
	entry.count++
	entry.expiresAt = now.Add(window)
	return entry.count, nil
}

func (s *memCounterStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errStoreDown
	}
	entry, ok := s.counters[key]
	if !ok || s.clock.Now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

type memEventStore struct {
	mu      sync.Mutex
	events  []string
	alerts  []string
	failing bool
}

func newMemEventStore() *memEventStore {
	return &memEventStore{}
}

func (s *memEventStore) PushEvent(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	s.events = append([]string{string(payload)}, s.events...)
	return nil
}

func (s *memEventStore) RecentEvents(_ context.Context, n int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	if int64(len(s.events)) < n {
		n = int64(len(s.events))
	}
	return append([]string(nil), s.events[:n]...), nil
}

func (s *memEventStore) PushAlert(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	s.alerts = append([]string{string(payload)}, s.alerts...)
	return nil
}

func (s *memEventStore) RecentAlerts(_ context.Context, n int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	if int64(len(s.alerts)) < n {
		n = int64(len(s.alerts))
	}
	return append([]string(nil), s.alerts[:n]...), nil
}

type ledgerRecord struct {
	payload   string
	expiresAt time.Time
}

type memLedgerStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries map[string]ledgerRecord
	failing bool
}

func newMemLedgerStore(clock *fakeClock) *memLedgerStore {
	return &memLedgerStore{clock: clock, entries: make(map[string]ledgerRecord)}
}

func (s *memLedgerStore) Put(_ context.Context, jti string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	s.entries[jti] = ledgerRecord{payload: string(payload), expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *memLedgerStore) Get(_ context.Context, jti string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return "", false, errStoreDown
	}
	rec, ok := s.entries[jti]
	if !ok || s.clock.Now().After(rec.expiresAt) {
		return "", false, nil
	}
	return rec.payload, true, nil
}

func (s *memLedgerStore) Delete(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	delete(s.entries, jti)
	return nil
}

type stagedSecret struct {
	value     string
	expiresAt time.Time
}

type memMFAStore struct {
	mu     sync.Mutex
	clock  *fakeClock
	staged map[string]stagedSecret
	active map[string]string
}

func newMemMFAStore(clock *fakeClock) *memMFAStore {
	return &memMFAStore{
		clock:  clock,
		staged: make(map[string]stagedSecret),
		active: make(map[string]string),
	}
}

func (s *memMFAStore) StageSecret(_ context.Context, userID, encryptedSecret string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[userID] = stagedSecret{value: encryptedSecret, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *memMFAStore) StagedSecret(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.staged[userID]
	if !ok || s.clock.Now().After(rec.expiresAt) {
		return "", false, nil
	}
	return rec.value, true, nil
}

func (s *memMFAStore) DeleteStaged(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staged, userID)
	return nil
}

func (s *memMFAStore) ActivateSecret(_ context.Context, userID, encryptedSecret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[userID] = encryptedSecret
	return nil
}

func (s *memMFAStore) ActiveSecret(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.active[userID]
	return val, ok, nil
}

type memActivityReader struct {
	ips     []string
	agents  []string
	hour    float64
	hasHour bool
	err     error
}

func (r *memActivityReader) KnownIPs(context.Context, string) ([]string, error) {
	return r.ips, r.err
}

func (r *memActivityReader) KnownAgents(context.Context, string) ([]string, error) {
	return r.agents, r.err
}

func (r *memActivityReader) TypicalLoginHour(context.Context, string) (float64, bool, error) {
	return r.hour, r.hasHour, r.err
}

// plainCipher marks values as sealed without real cryptography, keeping
// service tests independent of the encryption package.
type plainCipher struct{}

func (plainCipher) EncryptSensitive(_ context.Context, plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (plainCipher) DecryptSensitive(_ context.Context, token string) (string, error) {
	plaintext, ok := strings.CutPrefix(token, "sealed:")
	if !ok {
		return "", errors.New("not a sealed value")
	}
	return plaintext, nil
}

func newTestEventLog(store *memEventStore) *EventLog {
	return NewEventLog(store, nil, nil, zap.NewNop())
}
