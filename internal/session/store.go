package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// StorageKey is the fixed record name used in every tier
const StorageKey = "bird.auth.session"

// Store persists one Session in exactly one of two tiers: the per-visit tier
// (cleared when the browser or login shell goes away) or the durable tier.
// Reads prefer the per-visit tier.
type Store struct {
	visit   Storage
	durable Storage
	now     func() time.Time
	logger  zerolog.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock overrides the clock used for expiry checks
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report discarded records
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a two-tier store
func NewStore(visit, durable Storage, opts ...StoreOption) *Store {
	s := &Store{
		visit:   visit,
		durable: durable,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time
func (s *Store) Now() time.Time {
	return s.now()
}

// Save writes the session to the durable tier when remember is set, otherwise to
// the per-visit tier, and removes any record from the other tier.
func (s *Store) Save(sess Session, remember bool) {
	data, err := json.Marshal(sess)
	if err != nil {
		// A Session only holds strings, ints and slices of strings
		panic(fmt.Sprintf("session: failed to marshal session: %v", err))
	}

	target, other := s.visit, s.durable
	if remember {
		target, other = s.durable, s.visit
	}
	target.Set(StorageKey, string(data))
	other.Remove(StorageKey)
}

// Load returns the stored session when it is present, well formed and unexpired.
// A stale or malformed record is cleared from both tiers.
func (s *Store) Load() (Session, bool) {
	raw, ok := s.visit.Get(StorageKey)
	if ok && raw == "" {
		// An empty record holds nothing; the durable tier may still have one
		s.visit.Remove(StorageKey)
		ok = false
	}
	if !ok {
		raw, ok = s.durable.Get(StorageKey)
	}
	if !ok {
		return Session{}, false
	}
	if raw == "" {
		s.durable.Remove(StorageKey)
		return Session{}, false
	}

	sess, err := Decode([]byte(raw))
	if err != nil {
		s.logger.Debug().Err(err).Msg("Discarding malformed stored session")
		s.Clear()
		return Session{}, false
	}

	if sess.Expired(s.now()) {
		s.logger.Debug().Int64("expires_at", sess.ExpiresAt).Msg("Discarding expired stored session")
		s.Clear()
		return Session{}, false
	}

	return sess, true
}

// Clear removes the record from both tiers
func (s *Store) Clear() {
	s.visit.Remove(StorageKey)
	s.durable.Remove(StorageKey)
}
