package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/channel-tender/lifecycle"
	"github.com/onnwee/channel-tender/testutil"
)

const testGuild = 5

func newTestClient(t *testing.T) (*Client, *testutil.MockDiscordServer) {
	t.Helper()
	mock := testutil.NewMockDiscordServer(t)
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	s.Client = mock.Client()
	s.MaxRestRetries = 0
	return NewWithSession(s, testGuild), mock
}

func TestConvertChannelsNormalizesPerCategory(t *testing.T) {
	raw := []*discordgo.Channel{
		{ID: "10", Name: "Active", Type: discordgo.ChannelTypeGuildCategory, Position: 0},
		{ID: "3", Name: "zeta", ParentID: "10", Position: 7},
		{ID: "1", Name: "alpha", ParentID: "10", Position: 4},
		{ID: "2", Name: "beta", ParentID: "10", Position: 4},
		{ID: "4", Name: "lobby", Position: 12},
		{ID: "5", Name: "old", ParentID: "20", Position: 30},
	}

	got, err := convertChannels(raw)
	if err != nil {
		t.Fatalf("convertChannels() error: %v", err)
	}
	want := []lifecycle.Channel{
		{ID: 1, Name: "alpha", CategoryID: 10, Position: 0},
		{ID: 2, Name: "beta", CategoryID: 10, Position: 1},
		{ID: 3, Name: "zeta", CategoryID: 10, Position: 2},
		{ID: 4, Name: "lobby", CategoryID: 0, Position: 0},
		{ID: 5, Name: "old", CategoryID: 20, Position: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d channels, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("channel %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestConvertChannelsRejectsBadID(t *testing.T) {
	if _, err := convertChannels([]*discordgo.Channel{{ID: "not-a-snowflake"}}); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestConvertMessage(t *testing.T) {
	ts := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	edited := ts.Add(time.Hour)

	tests := []struct {
		name string
		in   *discordgo.Message
		want lifecycle.Message
	}{
		{
			name: "user message",
			in:   &discordgo.Message{ID: "20", ChannelID: "1", Content: "hi", Timestamp: ts, Author: &discordgo.User{ID: "7"}},
			want: lifecycle.Message{ID: 20, ChannelID: 1, AuthorID: 7, Content: "hi", Timestamp: ts},
		},
		{
			name: "webhook relay",
			in:   &discordgo.Message{ID: "21", ChannelID: "1", Timestamp: ts, WebhookID: "900", Author: &discordgo.User{ID: "900"}},
			want: lifecycle.Message{ID: 21, ChannelID: 1, AuthorID: 900, Timestamp: ts, FromWebhook: true},
		},
		{
			name: "edited without author",
			in:   &discordgo.Message{ID: "22", ChannelID: "1", Timestamp: ts, EditedTimestamp: &edited},
			want: lifecycle.Message{ID: 22, ChannelID: 1, Timestamp: ts, EditedTimestamp: &edited},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertMessage(tt.in)
			if err != nil {
				t.Fatalf("convertMessage() error: %v", err)
			}
			if got.ID != tt.want.ID || got.ChannelID != tt.want.ChannelID || got.AuthorID != tt.want.AuthorID ||
				got.Content != tt.want.Content || !got.Timestamp.Equal(tt.want.Timestamp) || got.FromWebhook != tt.want.FromWebhook {
				t.Errorf("convertMessage() = %+v, want %+v", got, tt.want)
			}
			if (got.EditedTimestamp == nil) != (tt.want.EditedTimestamp == nil) {
				t.Errorf("EditedTimestamp = %v, want %v", got.EditedTimestamp, tt.want.EditedTimestamp)
			}
		})
	}
}

func TestWrapErrCarriesStatus(t *testing.T) {
	rest := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	err := wrapErr("edit channel", rest)

	var se *lifecycle.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Fatalf("wrapErr() = %v, want StatusError with 403", err)
	}
	if lifecycle.ClassifyError(err) != lifecycle.ErrorClassFatal {
		t.Errorf("class = %v, want fatal", lifecycle.ClassifyError(err))
	}

	plain := wrapErr("edit channel", errors.New("boom"))
	if errors.As(plain, &se) {
		t.Error("plain error should not become a StatusError")
	}
}

func TestClientChannels(t *testing.T) {
	c, mock := newTestClient(t)
	mock.MockJSON("GET /guilds/5/channels", []map[string]any{
		{"id": "10", "type": 4, "name": "Active", "position": 0},
		{"id": "2", "type": 0, "name": "general", "parent_id": "10", "position": 9},
		{"id": "1", "type": 0, "name": "art", "parent_id": "10", "position": 3},
	})

	got, err := c.Channels(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Channels() error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "art" || got[0].Position != 0 || got[1].Position != 1 {
		t.Errorf("Channels() = %+v", got)
	}
}

func TestClientRecentMessages(t *testing.T) {
	c, mock := newTestClient(t)
	mock.MockJSON("GET /channels/1/messages", []map[string]any{
		{"id": "31", "channel_id": "1", "content": "!archive", "timestamp": "2026-10-14T12:00:00+00:00", "author": map[string]any{"id": "7"}},
		{"id": "30", "channel_id": "1", "content": "relay", "timestamp": "2026-10-13T12:00:00+00:00", "webhook_id": "88", "author": map[string]any{"id": "88"}},
	})

	got, err := c.RecentMessages(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("RecentMessages() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].ID != 31 || got[0].AuthorID != 7 || got[0].FromWebhook {
		t.Errorf("message 0 = %+v", got[0])
	}
	if !got[1].FromWebhook {
		t.Errorf("message 1 should be flagged as webhook")
	}
}

func TestClientEditChannelSendsParentAndPosition(t *testing.T) {
	c, mock := newTestClient(t)
	mock.MockJSON("PATCH /channels/3", map[string]any{"id": "3", "type": 0})

	if err := c.EditChannel(context.Background(), 3, lifecycle.ChannelEdit{CategoryID: 20, Position: 4}); err != nil {
		t.Fatalf("EditChannel() error: %v", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	var body map[string]any
	if err := json.Unmarshal(reqs[0].Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["parent_id"] != "20" {
		t.Errorf("parent_id = %v, want \"20\"", body["parent_id"])
	}
	if pos, _ := body["position"].(float64); pos != 4 {
		t.Errorf("position = %v, want 4", body["position"])
	}
}

func TestClientEditChannelPositionOnly(t *testing.T) {
	c, mock := newTestClient(t)
	mock.MockJSON("PATCH /channels/3", map[string]any{"id": "3", "type": 0})

	if err := c.EditChannel(context.Background(), 3, lifecycle.ChannelEdit{Position: 0}); err != nil {
		t.Fatalf("EditChannel() error: %v", err)
	}
	var body map[string]any
	_ = json.Unmarshal(mock.Requests()[0].Body, &body)
	if _, ok := body["parent_id"]; ok {
		t.Errorf("parent_id sent for a position-only edit: %v", body)
	}
	if _, ok := body["position"]; !ok {
		t.Error("position 0 must still be sent")
	}
}

func TestClientEditChannelForbidden(t *testing.T) {
	c, mock := newTestClient(t)
	mock.MockStatus("PATCH /channels/3", http.StatusForbidden)

	err := c.EditChannel(context.Background(), 3, lifecycle.ChannelEdit{Position: 1})
	var se *lifecycle.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Errorf("EditChannel() error = %v, want 403 StatusError", err)
	}
}

func TestClientDeleteMessage(t *testing.T) {
	c, mock := newTestClient(t)
	mock.MockNoContent("DELETE /channels/1/messages/31")

	if err := c.DeleteMessage(context.Background(), 1, 31); err != nil {
		t.Errorf("DeleteMessage() error: %v", err)
	}
}

func TestClientHasCapability(t *testing.T) {
	c, mock := newTestClient(t)
	mock.MockJSON("GET /guilds/5/members/7", map[string]any{"user": map[string]any{"id": "7"}, "roles": []string{"1000", "2000"}})
	mock.MockJSON("GET /guilds/5/members/8", map[string]any{"user": map[string]any{"id": "8"}, "roles": []string{"2000"}})

	tests := []struct {
		user uint64
		want bool
	}{
		{7, true},
		{8, false},
	}
	for _, tt := range tests {
		got, err := c.HasCapability(context.Background(), tt.user, 1, 1000)
		if err != nil {
			t.Fatalf("HasCapability(%d) error: %v", tt.user, err)
		}
		if got != tt.want {
			t.Errorf("HasCapability(%d) = %v, want %v", tt.user, got, tt.want)
		}
	}
}

func TestEventReason(t *testing.T) {
	const guild = "5"
	tests := []struct {
		name   string
		ev     any
		want   string
		wantOK bool
	}{
		{"ready", &discordgo.Ready{}, ReasonReady, true},
		{"message in guild", &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: guild}}, ReasonMessageCreate, true},
		{"message elsewhere", &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: "6"}}, "", false},
		{"direct message", &discordgo.MessageCreate{Message: &discordgo.Message{}}, "", false},
		{"channel create", &discordgo.ChannelCreate{Channel: &discordgo.Channel{GuildID: guild}}, ReasonChannelCreate, true},
		{"channel delete", &discordgo.ChannelDelete{Channel: &discordgo.Channel{GuildID: guild}}, ReasonChannelDelete, true},
		{"channel delete elsewhere", &discordgo.ChannelDelete{Channel: &discordgo.Channel{GuildID: "6"}}, "", false},
		{"unrelated event", &discordgo.TypingStart{GuildID: guild}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := eventReason(guild, tt.ev)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("eventReason() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestReadyDefaultsFalse(t *testing.T) {
	c, _ := newTestClient(t)
	if c.Ready() {
		t.Error("Ready() = true before any gateway event")
	}
}
