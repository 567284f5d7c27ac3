// Package archive holds the moderator override table: which channels were explicitly archived and
// when. The table lives in memory for the process lifetime and is written through to a Persister
// after every mutation.
package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/channel-tender/telemetry"
)

// Entry records the instant an archive command was honored for a channel.
type Entry struct {
	ChannelID uint64
	Timestamp time.Time
}

// Equal reports whether both entries name the same channel and the same instant.
func (e Entry) Equal(o Entry) bool {
	return e.ChannelID == o.ChannelID && e.Timestamp.Equal(o.Timestamp)
}

// Persister loads and saves the full override set. Save always receives every entry.
type Persister interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Truncate reduces t to the resolution the persisted format can represent.
func Truncate(t time.Time) time.Time {
	return t.Truncate(time.Second)
}

// Store is the in-memory override table. At most one entry exists per channel id.
//
// Callers that need a multi-step critical section (the reconciliation pass) serialize themselves;
// the internal mutex only keeps individual reads consistent for concurrent status readers.
type Store struct {
	persister Persister

	mu      sync.RWMutex
	entries []Entry
}

// NewStore returns an empty store backed by p. Call Load to populate it.
func NewStore(p Persister) *Store {
	return &Store{persister: p}
}

// Load replaces the in-memory table with the persisted state. Missing or undecodable state leaves
// the store empty; the failure is logged and never returned.
func (s *Store) Load(ctx context.Context) {
	logger := slog.Default().With(slog.String("component", "override_store"))
	entries, err := s.persister.Load(ctx)
	if err != nil {
		logger.Warn("override state unreadable, starting empty", slog.Any("err", err))
		entries = nil
	}
	s.mu.Lock()
	s.entries = dedupe(entries)
	n := len(s.entries)
	s.mu.Unlock()
	telemetry.SetOverrideCount(n)
	logger.Info("override state loaded", slog.Int("entries", n))
}

// Contains reports whether exactly this entry (channel and instant) is stored.
func (s *Store) Contains(e Entry) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cur := range s.entries {
		if cur.Equal(e) {
			return true
		}
	}
	return false
}

// PositionOf returns the index of the channel's entry, if any.
func (s *Store) PositionOf(channelID uint64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(channelID)
}

// Lookup returns the channel's entry, if any.
func (s *Store) Lookup(channelID uint64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.indexLocked(channelID); ok {
		return s.entries[i], true
	}
	return Entry{}, false
}

// Entries returns a copy of the table in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Replace drops any entry for channelID, inserts (channelID, ts) and persists the table.
func (s *Store) Replace(ctx context.Context, channelID uint64, ts time.Time) {
	s.mu.Lock()
	if i, ok := s.indexLocked(channelID); ok {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
	s.entries = append(s.entries, Entry{ChannelID: channelID, Timestamp: Truncate(ts)})
	snapshot := append([]Entry(nil), s.entries...)
	s.mu.Unlock()
	s.persist(ctx, snapshot)
}

// Remove deletes the channel's entry and persists the table if an entry was removed.
func (s *Store) Remove(ctx context.Context, channelID uint64) bool {
	s.mu.Lock()
	i, ok := s.indexLocked(channelID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	snapshot := append([]Entry(nil), s.entries...)
	s.mu.Unlock()
	s.persist(ctx, snapshot)
	return true
}

// Set replaces the whole table with entries in one write. Later entries for a channel win, the
// same as calling Replace for each in turn. Unlike the single-entry mutations it reports a failed
// write, and the in-memory table is left unchanged in that case.
func (s *Store) Set(ctx context.Context, entries []Entry) error {
	next := make([]Entry, len(entries))
	for i, e := range entries {
		next[i] = Entry{ChannelID: e.ChannelID, Timestamp: Truncate(e.Timestamp)}
	}
	next = dedupe(next)
	if err := s.persister.Save(ctx, next); err != nil {
		telemetry.IncPersistFailure()
		return err
	}
	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
	telemetry.SetOverrideCount(len(next))
	return nil
}

// persist writes the snapshot. A failed write keeps the in-memory table authoritative; the next
// mutation rewrites the whole set again.
func (s *Store) persist(ctx context.Context, snapshot []Entry) {
	telemetry.SetOverrideCount(len(snapshot))
	if err := s.persister.Save(ctx, snapshot); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("couldn't persist override state",
			slog.Any("err", err),
			slog.Int("entries", len(snapshot)),
			slog.String("component", "override_store"))
		telemetry.IncPersistFailure()
	}
}

func (s *Store) indexLocked(channelID uint64) (int, bool) {
	for i, e := range s.entries {
		if e.ChannelID == channelID {
			return i, true
		}
	}
	return -1, false
}

// dedupe keeps the last entry per channel, preserving first-seen order of the survivors.
func dedupe(entries []Entry) []Entry {
	last := make(map[uint64]int, len(entries))
	for i, e := range entries {
		last[e.ChannelID] = i
	}
	out := make([]Entry, 0, len(last))
	for i, e := range entries {
		if last[e.ChannelID] == i {
			out = append(out, e)
		}
	}
	return out
}
