package discord

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Event reasons passed to the trigger.
const (
	ReasonReady         = "ready"
	ReasonMessageCreate = "message_create"
	ReasonChannelCreate = "channel_create"
	ReasonChannelDelete = "channel_delete"
)

type sessionStatus struct {
	ready atomic.Bool
}

// Ready reports whether the gateway session is connected and identified.
func (c *Client) Ready() bool { return c.status.ready.Load() }

// OnEvent registers fn for every gateway event of the managed guild that should start a pass.
// discordgo dispatches each event on its own goroutine, so fn may block.
func (c *Client) OnEvent(fn func(reason string)) {
	guild := formatID(c.guildID)
	dispatch := func(ev any) {
		if reason, ok := eventReason(guild, ev); ok {
			fn(reason)
		}
	}
	c.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.Ready) {
		c.status.ready.Store(true)
		dispatch(ev)
	})
	c.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		c.status.ready.Store(false)
	})
	c.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageCreate) { dispatch(ev) })
	c.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.ChannelCreate) { dispatch(ev) })
	c.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.ChannelDelete) { dispatch(ev) })
}

// eventReason maps a gateway event to a pass reason. Events from other guilds are ignored.
func eventReason(guild string, ev any) (string, bool) {
	switch e := ev.(type) {
	case *discordgo.Ready:
		return ReasonReady, true
	case *discordgo.MessageCreate:
		if e.Message != nil && e.GuildID == guild {
			return ReasonMessageCreate, true
		}
	case *discordgo.ChannelCreate:
		if e.Channel != nil && e.GuildID == guild {
			return ReasonChannelCreate, true
		}
	case *discordgo.ChannelDelete:
		if e.Channel != nil && e.GuildID == guild {
			return ReasonChannelDelete, true
		}
	}
	return "", false
}

// Run opens the gateway session, retrying forever every retryEvery until it succeeds, then blocks
// until ctx is canceled and closes the session.
func (c *Client) Run(ctx context.Context, retryEvery time.Duration) error {
	logger := slog.Default().With(slog.String("component", "discord"))
	for attempt := 1; ; attempt++ {
		err := c.session.Open()
		if err == nil {
			logger.Info("discord session open", slog.Int("attempt", attempt))
			break
		}
		logger.Error("discord session open failed", slog.Any("err", err), slog.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryEvery):
		}
	}

	<-ctx.Done()
	c.status.ready.Store(false)
	logger.Info("closing discord session")
	return c.session.Close()
}
