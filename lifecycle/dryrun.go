package lifecycle

import (
	"context"
	"log/slog"

	"github.com/onnwee/channel-tender/telemetry"
)

// DryRun wraps a platform so that reads go through and mutations are only logged.
func DryRun(p Platform) Platform { return dryRun{Platform: p} }

type dryRun struct{ Platform }

func (d dryRun) EditChannel(ctx context.Context, channelID uint64, edit ChannelEdit) error {
	telemetry.LoggerWithCorr(ctx).Info("dry run: would edit channel",
		slog.Uint64("channel", channelID),
		slog.Uint64("category", edit.CategoryID),
		slog.Int("position", edit.Position))
	return nil
}

func (d dryRun) DeleteMessage(ctx context.Context, channelID, messageID uint64) error {
	telemetry.LoggerWithCorr(ctx).Info("dry run: would delete message",
		slog.Uint64("channel", channelID),
		slog.Uint64("message", messageID))
	return nil
}
