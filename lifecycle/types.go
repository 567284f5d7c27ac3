// Package lifecycle decides which category every managed channel belongs in and where it sits
// inside that category, and drives the platform until reality matches.
//
// A pass runs Evaluate (activity), Resolve (overrides and the archive command) and Plan (ordering)
// over a fresh guild snapshot and emits at most one edit per channel. Passes are serialized by the
// Driver and are safe to repeat: a pass over an already reconciled guild emits nothing.
package lifecycle

import (
	"context"
	"time"
)

// Channel is the platform's view of a guild channel.
type Channel struct {
	ID   uint64
	Name string
	// CategoryID is 0 for channels outside any category.
	CategoryID uint64
	// Position is the channel's index among the channels of its category.
	Position int
}

// Message is one entry of a channel's recent history.
type Message struct {
	ID              uint64
	ChannelID       uint64
	AuthorID        uint64
	Content         string
	Timestamp       time.Time
	EditedTimestamp *time.Time
	// FromWebhook marks messages relayed by webhooks or bots acting as relays; they never count as
	// activity.
	FromWebhook bool
}

// ChannelEdit is one combined category and position change.
type ChannelEdit struct {
	// CategoryID is the new parent category; 0 leaves the category unchanged.
	CategoryID uint64
	Position   int
}

// Platform is the chat platform as seen by a pass.
type Platform interface {
	Channels(ctx context.Context, guildID uint64) ([]Channel, error)
	// RecentMessages returns at most limit messages, newest first.
	RecentMessages(ctx context.Context, channelID uint64, limit int) ([]Message, error)
	EditChannel(ctx context.Context, channelID uint64, edit ChannelEdit) error
	DeleteMessage(ctx context.Context, channelID, messageID uint64) error
	HasCapability(ctx context.Context, userID, channelID, capability uint64) (bool, error)
}
