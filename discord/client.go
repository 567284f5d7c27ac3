// Package discord adapts a discordgo session to the lifecycle.Platform interface and turns gateway
// events into reconciliation triggers.
//
// Snowflakes are converted to uint64 at this boundary. Channel positions are normalized to a
// zero-based index inside each parent category, which is the coordinate system the planner works
// in; raw Discord positions are only compared, never exposed.
package discord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/channel-tender/lifecycle"
)

// Client is a lifecycle.Platform backed by the Discord REST API.
type Client struct {
	session *discordgo.Session
	guildID uint64
	status  *sessionStatus
}

var _ lifecycle.Platform = (*Client)(nil)

// New creates a bot session for guildID. The session is not opened; see Run.
func New(token string, guildID uint64) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return NewWithSession(s, guildID), nil
}

// NewWithSession wraps an existing session.
func NewWithSession(s *discordgo.Session, guildID uint64) *Client {
	return &Client{session: s, guildID: guildID, status: &sessionStatus{}}
}

// Channels lists the guild's channels (categories excluded) with positions normalized per category.
func (c *Client) Channels(ctx context.Context, guildID uint64) ([]lifecycle.Channel, error) {
	raw, err := c.session.GuildChannels(formatID(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("list guild channels", err)
	}
	return convertChannels(raw)
}

// RecentMessages returns up to limit messages, newest first.
func (c *Client) RecentMessages(ctx context.Context, channelID uint64, limit int) ([]lifecycle.Message, error) {
	raw, err := c.session.ChannelMessages(formatID(channelID), limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapErr("fetch messages", err)
	}
	out := make([]lifecycle.Message, 0, len(raw))
	for _, m := range raw {
		msg, err := convertMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// EditChannel sends one PATCH carrying both the new parent and the new position.
func (c *Client) EditChannel(ctx context.Context, channelID uint64, edit lifecycle.ChannelEdit) error {
	pos := edit.Position
	data := &discordgo.ChannelEdit{Position: &pos}
	if edit.CategoryID != 0 {
		data.ParentID = formatID(edit.CategoryID)
	}
	if _, err := c.session.ChannelEdit(formatID(channelID), data, discordgo.WithContext(ctx)); err != nil {
		return wrapErr("edit channel", err)
	}
	return nil
}

// DeleteMessage removes one message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID uint64) error {
	if err := c.session.ChannelMessageDelete(formatID(channelID), formatID(messageID), discordgo.WithContext(ctx)); err != nil {
		return wrapErr("delete message", err)
	}
	return nil
}

// HasCapability reports whether the user holds the capability role in the guild. Roles are
// guild-wide, so the channel does not narrow the check.
func (c *Client) HasCapability(ctx context.Context, userID, _, capability uint64) (bool, error) {
	member, err := c.session.GuildMember(formatID(c.guildID), formatID(userID), discordgo.WithContext(ctx))
	if err != nil {
		return false, wrapErr("fetch member", err)
	}
	return slices.Contains(member.Roles, formatID(capability)), nil
}

func convertChannels(raw []*discordgo.Channel) ([]lifecycle.Channel, error) {
	type ranked struct {
		ch  lifecycle.Channel
		raw int
	}
	byParent := make(map[uint64][]ranked)
	for _, rc := range raw {
		if rc == nil || rc.Type == discordgo.ChannelTypeGuildCategory {
			continue
		}
		id, err := parseID(rc.ID)
		if err != nil {
			return nil, fmt.Errorf("channel id: %w", err)
		}
		var parent uint64
		if rc.ParentID != "" {
			if parent, err = parseID(rc.ParentID); err != nil {
				return nil, fmt.Errorf("channel %s parent id: %w", rc.ID, err)
			}
		}
		byParent[parent] = append(byParent[parent], ranked{
			ch:  lifecycle.Channel{ID: id, Name: rc.Name, CategoryID: parent},
			raw: rc.Position,
		})
	}

	var out []lifecycle.Channel
	for _, members := range byParent {
		sort.Slice(members, func(i, j int) bool {
			if members[i].raw != members[j].raw {
				return members[i].raw < members[j].raw
			}
			return members[i].ch.ID < members[j].ch.ID
		})
		for i, m := range members {
			m.ch.Position = i
			out = append(out, m.ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func convertMessage(m *discordgo.Message) (lifecycle.Message, error) {
	id, err := parseID(m.ID)
	if err != nil {
		return lifecycle.Message{}, fmt.Errorf("message id: %w", err)
	}
	channelID, err := parseID(m.ChannelID)
	if err != nil {
		return lifecycle.Message{}, fmt.Errorf("message %s channel id: %w", m.ID, err)
	}
	out := lifecycle.Message{
		ID:              id,
		ChannelID:       channelID,
		Content:         m.Content,
		Timestamp:       m.Timestamp,
		EditedTimestamp: m.EditedTimestamp,
		FromWebhook:     m.WebhookID != "",
	}
	if m.Author != nil {
		if out.AuthorID, err = parseID(m.Author.ID); err != nil {
			return lifecycle.Message{}, fmt.Errorf("message %s author id: %w", m.ID, err)
		}
	}
	return out, nil
}

func wrapErr(op string, err error) error {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil {
		return &lifecycle.StatusError{Op: op, Status: re.Response.StatusCode, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
