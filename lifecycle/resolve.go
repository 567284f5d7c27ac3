package lifecycle

import (
	"context"
	"log/slog"

	"github.com/onnwee/channel-tender/archive"
	"github.com/onnwee/channel-tender/config"
	"github.com/onnwee/channel-tender/telemetry"
)

// ResolveInput is everything Resolve needs to know about one channel.
type ResolveInput struct {
	Channel    Channel
	Evaluation Evaluation
	// Authorized is true when the author of Evaluation.Latest holds the moderator capability.
	Authorized bool
	Trigger    string
}

// Decision is the outcome of Resolve for one channel.
type Decision struct {
	Target uint64
	// Recorded is set when an archive command was honored in this call.
	Recorded bool
	// Superseded is set when newer activity cleared an override.
	Superseded bool
	// DeleteTrigger is the command message to remove from the channel, if any.
	DeleteTrigger *Message
}

// ArchiveEntry is the override an archive command in m would record for channelID.
func ArchiveEntry(channelID uint64, m Message) archive.Entry {
	return archive.Entry{ChannelID: channelID, Timestamp: archive.Truncate(Effective(m))}
}

// Resolve merges the activity verdict with the override table and picks the target category.
// It mutates store when an archive command is honored or an override is superseded.
//
// Precedence: stale channels are always inactive; a fresh channel whose override predates its
// latest activity loses the override and goes active; a surviving override keeps it inactive;
// everything else is active.
func Resolve(ctx context.Context, in ResolveInput, store *archive.Store, p config.Partition) Decision {
	var dec Decision
	latest := in.Evaluation.Latest
	id := in.Channel.ID

	if latest != nil && in.Authorized && IsTrigger(*latest, in.Trigger) {
		entry := ArchiveEntry(id, *latest)
		if !store.Contains(entry) {
			store.Replace(ctx, id, entry.Timestamp)
			telemetry.Inc(telemetry.ArchiveCommands)
			telemetry.LoggerWithCorr(ctx).Info("archive command honored",
				slog.Uint64("channel", id),
				slog.String("name", in.Channel.Name),
				slog.Uint64("author", latest.AuthorID),
				slog.Time("at", entry.Timestamp))
			msg := *latest
			dec.Recorded = true
			dec.DeleteTrigger = &msg
		}
	}

	if in.Evaluation.Activity == Stale {
		dec.Target = p.Inactive
		return dec
	}

	active := p.ActiveFor(in.Channel.Name)
	override, ok := store.Lookup(id)
	switch {
	case !ok:
		dec.Target = active
	case archive.Truncate(Effective(*latest)).After(override.Timestamp):
		store.Remove(ctx, id)
		telemetry.Inc(telemetry.OverridesCleared)
		telemetry.LoggerWithCorr(ctx).Info("override superseded by newer activity",
			slog.Uint64("channel", id),
			slog.String("name", in.Channel.Name),
			slog.Time("override", override.Timestamp))
		dec.Superseded = true
		dec.Target = active
	default:
		dec.Target = p.Inactive
	}
	return dec
}
