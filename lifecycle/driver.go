package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/channel-tender/archive"
	"github.com/onnwee/channel-tender/config"
	"github.com/onnwee/channel-tender/telemetry"
)

// Options configures a Driver.
type Options struct {
	GuildID   uint64
	Partition config.Partition
	// Capability is the moderator capability (role) required to issue the trigger.
	Capability uint64
	Trigger    string
	StaleAfter time.Duration
	// FetchLimit is the platform's ceiling on recent messages per request.
	FetchLimit int
	// Now defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig builds driver options from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		GuildID:    cfg.GuildID,
		Partition:  cfg.Partition,
		Capability: cfg.ModeratorRole,
		Trigger:    cfg.Trigger,
		StaleAfter: cfg.StaleAfter,
		FetchLimit: cfg.FetchLimit,
	}
}

// Edit is one channel mutation issued (or attempted) by a pass.
type Edit struct {
	ChannelID    uint64 `json:"channel_id,string"`
	Name         string `json:"name"`
	FromCategory uint64 `json:"from_category,string"`
	ToCategory   uint64 `json:"to_category,string"`
	FromPosition int    `json:"from_position"`
	ToPosition   int    `json:"to_position"`
	Err          string `json:"error,omitempty"`
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	ID         string        `json:"id"`
	Reason     string        `json:"reason"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Channels   int           `json:"channels"`
	Evaluated  int           `json:"evaluated"`
	Skipped    int           `json:"skipped"`
	Recorded   []uint64      `json:"recorded,omitempty"`
	Superseded []uint64      `json:"superseded,omitempty"`
	Deleted    int           `json:"deleted_triggers"`
	Edits      []Edit        `json:"edits,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// Driver runs reconciliation passes against a platform. It owns the override store for the
// duration of each pass.
type Driver struct {
	platform Platform
	store    *archive.Store
	opts     Options

	// passMu is held for a whole pass, from snapshot fetch to the last edit.
	passMu sync.Mutex

	lastMu sync.RWMutex
	last   *PassResult
}

// NewDriver returns a driver for one guild.
func NewDriver(p Platform, store *archive.Store, opts Options) *Driver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = config.DefaultFetchLimit
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = config.DefaultStaleAfter
	}
	return &Driver{platform: p, store: store, opts: opts}
}

// Store returns the override store the driver mutates.
func (d *Driver) Store() *archive.Store { return d.store }

// ClearOverride drops the channel's override between passes. It waits for an in-flight pass so the
// store never changes under a pass that already read it.
func (d *Driver) ClearOverride(ctx context.Context, channelID uint64) bool {
	d.passMu.Lock()
	defer d.passMu.Unlock()
	return d.store.Remove(ctx, channelID)
}

// LastResult returns the summary of the most recent finished pass.
func (d *Driver) LastResult() (PassResult, bool) {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	if d.last == nil {
		return PassResult{}, false
	}
	return *d.last, true
}

// Run executes one full pass. Concurrent calls queue on the pass lock. The only returned error is
// a failed guild channel listing, in which case nothing was changed.
func (d *Driver) Run(ctx context.Context, reason string) (PassResult, error) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	res := PassResult{ID: uuid.NewString(), Reason: reason, StartedAt: d.opts.Now()}
	ctx = telemetry.WithCorrelation(ctx, res.ID)
	ctx, span := telemetry.StartSpan(ctx, "lifecycle", "reconcile.pass",
		telemetry.GuildAttr(d.opts.GuildID),
		telemetry.ReasonAttr(reason))
	defer span.End()

	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "reconcile"), slog.String("reason", reason))
	logger.Debug("pass start")

	var err error
	res.Duration = telemetry.TimeFunc(telemetry.PassDuration, func() {
		err = d.pass(ctx, logger, &res)
	})

	if err != nil {
		res.Err = err.Error()
		telemetry.RecordError(span, err)
		telemetry.IncPass("aborted")
		logger.Error("pass aborted", slog.Any("err", err))
	} else {
		telemetry.SetSpanSuccess(span)
		telemetry.IncPass("ok")
		logger.Info("pass complete",
			slog.Int("channels", res.Channels),
			slog.Int("evaluated", res.Evaluated),
			slog.Int("skipped", res.Skipped),
			slog.Int("edits", len(res.Edits)),
			slog.Duration("took", res.Duration))
	}

	d.lastMu.Lock()
	saved := res
	d.last = &saved
	d.lastMu.Unlock()
	return res, err
}

func (d *Driver) pass(ctx context.Context, logger *slog.Logger, res *PassResult) error {
	part := d.opts.Partition

	channels, err := d.platform.Channels(ctx, d.opts.GuildID)
	if err != nil {
		return fmt.Errorf("fetch guild channels: %w", err)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	res.Channels = len(channels)
	now := d.opts.Now()

	targets := make(map[uint64]uint64, len(channels))
	for _, ch := range channels {
		if !part.Managed(ch.CategoryID) {
			continue
		}
		// Failed or sticky channels stay where they are but still occupy a slot when planning.
		targets[ch.ID] = ch.CategoryID
		if part.Sticky != 0 && ch.ID == part.Sticky {
			continue
		}

		history, err := d.platform.RecentMessages(ctx, ch.ID, d.opts.FetchLimit)
		if err != nil {
			logger.Warn("couldn't fetch messages, skipping channel",
				slog.Uint64("channel", ch.ID),
				slog.String("name", ch.Name),
				slog.String("class", ClassifyError(err).String()),
				slog.Any("err", err))
			telemetry.IncSkip("fetch")
			res.Skipped++
			continue
		}
		res.Evaluated++

		eval := Evaluate(history, now, d.opts.StaleAfter)
		in := ResolveInput{Channel: ch, Evaluation: eval, Trigger: d.opts.Trigger}
		in.Authorized = d.authorized(ctx, logger, ch, eval)

		dec := Resolve(ctx, in, d.store, part)
		if dec.Recorded {
			res.Recorded = append(res.Recorded, ch.ID)
		}
		if dec.Superseded {
			res.Superseded = append(res.Superseded, ch.ID)
		}
		if dec.DeleteTrigger != nil {
			if err := d.platform.DeleteMessage(ctx, ch.ID, dec.DeleteTrigger.ID); err != nil {
				logger.Warn("couldn't delete archive command",
					slog.Uint64("channel", ch.ID),
					slog.Uint64("message", dec.DeleteTrigger.ID),
					slog.String("class", ClassifyError(err).String()),
					slog.Any("err", err))
				telemetry.IncSkip("delete")
			} else {
				res.Deleted++
				telemetry.Inc(telemetry.TriggerDeletions)
			}
		}
		targets[ch.ID] = dec.Target
	}

	positions := Plan(channels, targets, part)

	for _, ch := range channels {
		target, ok := targets[ch.ID]
		if !ok {
			continue
		}
		pos := positions[ch.ID]
		if target == ch.CategoryID && pos == ch.Position {
			continue
		}
		edit := ChannelEdit{Position: pos}
		if target != ch.CategoryID {
			edit.CategoryID = target
		}
		rec := Edit{
			ChannelID:    ch.ID,
			Name:         ch.Name,
			FromCategory: ch.CategoryID,
			ToCategory:   target,
			FromPosition: ch.Position,
			ToPosition:   pos,
		}
		if err := d.editChannel(ctx, ch.ID, edit); err != nil {
			logger.Warn("couldn't edit channel",
				slog.Uint64("channel", ch.ID),
				slog.String("name", ch.Name),
				slog.String("class", ClassifyError(err).String()),
				slog.Any("err", err))
			telemetry.IncSkip("edit")
			rec.Err = err.Error()
		} else {
			if edit.CategoryID != 0 {
				telemetry.IncEdit("category")
				logger.Info("channel moved",
					slog.Uint64("channel", ch.ID),
					slog.String("name", ch.Name),
					slog.Uint64("from", ch.CategoryID),
					slog.Uint64("to", target),
					slog.Int("position", pos))
			} else {
				telemetry.IncEdit("position")
				logger.Debug("channel reordered",
					slog.Uint64("channel", ch.ID),
					slog.String("name", ch.Name),
					slog.Int("from", ch.Position),
					slog.Int("to", pos))
			}
		}
		res.Edits = append(res.Edits, rec)
	}
	return nil
}

// authorized checks the moderator capability, but only for messages that would actually record a
// new override; everything else never needs the extra platform call.
func (d *Driver) authorized(ctx context.Context, logger *slog.Logger, ch Channel, eval Evaluation) bool {
	if eval.Latest == nil || !IsTrigger(*eval.Latest, d.opts.Trigger) {
		return false
	}
	if d.store.Contains(ArchiveEntry(ch.ID, *eval.Latest)) {
		return false
	}
	ok, err := d.platform.HasCapability(ctx, eval.Latest.AuthorID, ch.ID, d.opts.Capability)
	if err != nil {
		logger.Warn("couldn't check moderator capability",
			slog.Uint64("channel", ch.ID),
			slog.Uint64("author", eval.Latest.AuthorID),
			slog.Any("err", err))
		telemetry.IncSkip("capability")
		return false
	}
	return ok
}

func (d *Driver) editChannel(ctx context.Context, channelID uint64, edit ChannelEdit) error {
	ctx, span := telemetry.StartSpan(ctx, "lifecycle", "reconcile.edit", telemetry.ChannelAttr(channelID))
	defer span.End()
	err := d.platform.EditChannel(ctx, channelID, edit)
	telemetry.RecordError(span, err)
	return err
}
