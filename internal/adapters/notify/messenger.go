package notify

import (
	"context"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/view"
)

// ArchivePost is the payload of an archive.post envelope.
type ArchivePost struct {
	ChannelID string         `json:"channel_id"`
	View      view.EventView `json:"view"`
	Text      string         `json:"text"`
}

type messageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// Messenger issues chat-platform commands as published envelopes. The chat
// gateway consuming them owns the actual platform calls.
type Messenger struct {
	publisher Publisher
	now       func() time.Time
}

// NewMessenger creates a Messenger publishing through p.
func NewMessenger(p Publisher) *Messenger {
	return &Messenger{publisher: p, now: time.Now}
}

// DeleteMessage requests deletion of the event's public message. It returns
// ErrMessageGone when the event never had one.
func (m *Messenger) DeleteMessage(ctx context.Context, ev *model.Event) error {
	if ev.MessageID == "" {
		return ErrMessageGone
	}
	return m.send(ctx, TypeMessageDelete, ev, messageRef{ChannelID: ev.ChannelID, MessageID: ev.MessageID})
}

// DeleteThread requests deletion of the event's discussion thread.
func (m *Messenger) DeleteThread(ctx context.Context, ev *model.Event) error {
	if ev.ThreadID == "" {
		return ErrMessageGone
	}
	return m.send(ctx, TypeThreadDelete, ev, messageRef{ChannelID: ev.ChannelID, ThreadID: ev.ThreadID})
}

// PostArchive publishes the final roster to the guild's archive channel.
func (m *Messenger) PostArchive(ctx context.Context, channelID string, v view.EventView) error {
	env, err := NewEnvelope(TypeArchivePost, v.GuildID, v.EventID, m.now(), ArchivePost{
		ChannelID: channelID,
		View:      v,
		Text:      view.Render(v),
	})
	if err != nil {
		return err
	}
	return m.publisher.Publish(ctx, v.EventID, env)
}

func (m *Messenger) send(ctx context.Context, typ string, ev *model.Event, ref messageRef) error {
	env, err := NewEnvelope(typ, ev.GuildID, ev.ID, m.now(), ref)
	if err != nil {
		return err
	}
	return m.publisher.Publish(ctx, ev.ID, env)
}
