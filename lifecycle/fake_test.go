package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/onnwee/channel-tender/archive"
)

// memPersister keeps the persisted override set in memory and counts saves.
type memPersister struct {
	mu    sync.Mutex
	saved []archive.Entry
	saves int
}

func (m *memPersister) Load(context.Context) ([]archive.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]archive.Entry(nil), m.saved...), nil
}

func (m *memPersister) Save(_ context.Context, entries []archive.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append([]archive.Entry(nil), entries...)
	m.saves++
	return nil
}

type editCall struct {
	channel uint64
	edit    ChannelEdit
}

// fakePlatform is an in-memory guild. Edits are applied to its channels so consecutive passes see
// the result of earlier ones.
type fakePlatform struct {
	mu         sync.Mutex
	channels   map[uint64]*Channel
	history    map[uint64][]Message // newest first
	moderators map[uint64]bool

	edits     []editCall
	deleted   []uint64
	capChecks int

	listErr   error
	fetchErrs map[uint64]error
	editErrs  map[uint64]error
}

func newFakePlatform(channels ...Channel) *fakePlatform {
	f := &fakePlatform{
		channels:   make(map[uint64]*Channel),
		history:    make(map[uint64][]Message),
		moderators: make(map[uint64]bool),
		fetchErrs:  make(map[uint64]error),
		editErrs:   make(map[uint64]error),
	}
	for i := range channels {
		ch := channels[i]
		f.channels[ch.ID] = &ch
	}
	return f
}

// post prepends a message so the history stays newest first.
func (f *fakePlatform) post(m Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[m.ChannelID] = append([]Message{m}, f.history[m.ChannelID]...)
}

func (f *fakePlatform) channel(id uint64) Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.channels[id]
}

func (f *fakePlatform) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = nil
	f.deleted = nil
	f.capChecks = 0
}

func (f *fakePlatform) Channels(context.Context, uint64) ([]Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakePlatform) RecentMessages(_ context.Context, channelID uint64, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErrs[channelID]; err != nil {
		return nil, err
	}
	h := f.history[channelID]
	if len(h) > limit {
		h = h[:limit]
	}
	return append([]Message(nil), h...), nil
}

func (f *fakePlatform) EditChannel(_ context.Context, channelID uint64, edit ChannelEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editErrs[channelID]; err != nil {
		return err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return errors.New("unknown channel")
	}
	f.edits = append(f.edits, editCall{channel: channelID, edit: edit})
	if edit.CategoryID != 0 {
		ch.CategoryID = edit.CategoryID
	}
	ch.Position = edit.Position
	return nil
}

func (f *fakePlatform) DeleteMessage(_ context.Context, channelID, messageID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.history[channelID]
	for i, m := range h {
		if m.ID == messageID {
			f.history[channelID] = append(h[:i:i], h[i+1:]...)
			f.deleted = append(f.deleted, messageID)
			return nil
		}
	}
	return errors.New("unknown message")
}

func (f *fakePlatform) HasCapability(_ context.Context, userID, _, _ uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capChecks++
	return f.moderators[userID], nil
}

// stallingPlatform blocks the first channel edit until release is closed, holding the pass open.
type stallingPlatform struct {
	*fakePlatform
	once    sync.Once
	stalled chan struct{}
	release chan struct{}
}

func newStallingPlatform(f *fakePlatform) *stallingPlatform {
	return &stallingPlatform{fakePlatform: f, stalled: make(chan struct{}), release: make(chan struct{})}
}

func (s *stallingPlatform) EditChannel(ctx context.Context, channelID uint64, edit ChannelEdit) error {
	s.once.Do(func() {
		close(s.stalled)
		<-s.release
	})
	return s.fakePlatform.EditChannel(ctx, channelID, edit)
}
