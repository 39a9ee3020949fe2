// Copyright 2026 Teyda Authors

package discord

import (
	"encoding/json"

	"github.com/teyda/teyda/pkg/onebot"
)

// handleDispatch demultiplexes one gateway dispatch into canonical events.
// Dispatch types without a canonical mapping are dropped silently.
func (a *Adapter) handleDispatch(eventType string, data json.RawMessage) {
	switch eventType {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(data, &ready); err != nil {
			a.log.Warn().Err(err).Msg("Bad READY payload")
			return
		}
		a.mu.Lock()
		a.sessionID = ready.SessionID
		a.self.UserID = ready.User.ID
		a.mu.Unlock()
		a.log.Info().Str("session_id", ready.SessionID).Msg("Gateway session ready")
		a.setOnline(true)
	case "RESUMED":
		a.log.Info().Msg("Gateway session resumed")
		a.setOnline(true)
	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			a.log.Warn().Err(err).Msg("Bad MESSAGE_CREATE payload")
			return
		}
		a.handleMessageCreate(&msg)
	case "GUILD_MEMBER_ADD":
		var member guildMemberAddData
		if err := json.Unmarshal(data, &member); err != nil {
			a.log.Warn().Err(err).Msg("Bad GUILD_MEMBER_ADD payload")
			return
		}
		var userID string
		if member.User != nil {
			userID = member.User.ID
		}
		a.server.Send(a.memberNoticeEvent("group_member_increase", member.GuildID, userID))
	case "GUILD_MEMBER_REMOVE":
		var member guildMemberRemoveData
		if err := json.Unmarshal(data, &member); err != nil {
			a.log.Warn().Err(err).Msg("Bad GUILD_MEMBER_REMOVE payload")
			return
		}
		a.server.Send(a.memberNoticeEvent("group_member_decrease", member.GuildID, member.User.ID))
	default:
		a.log.Trace().Str("type", eventType).Msg("Unhandled dispatch type")
	}
}

// handleMessageCreate translates an inbound message, skipping the bot's own
// outbound echoes.
func (a *Adapter) handleMessageCreate(msg *Message) {
	if msg.Author != nil && msg.Author.ID == a.selfID().UserID {
		return
	}
	a.server.Send(a.messageEvent(msg))
}

// messageEvent translates a message. Direct messages carry no guild id and
// map to private; everything else is a group message scoped to its channel.
func (a *Adapter) messageEvent(msg *Message) *onebot.Event {
	detailType := "group"
	if msg.GuildID == "" {
		detailType = "private"
	}

	evt := onebot.NewEvent(onebot.EventMessage, detailType)
	if !msg.Timestamp.IsZero() {
		evt.Time = float64(msg.Timestamp.UnixMilli()) / 1000
	}
	self := a.selfID()
	evt.Self = &self
	evt.MessageID = onebot.MakeMessageID(msg.ChannelID, msg.ID)
	evt.Message = toMessage(msg)
	evt.AltMessage = msg.Content
	if msg.Author != nil {
		evt.UserID = msg.Author.ID
	}
	if detailType == "group" {
		evt.GroupID = msg.ChannelID
	}
	return evt
}

// memberNoticeEvent builds a guild membership notice. The guild id stands in
// as the group scope; membership is not channel-granular on this platform.
func (a *Adapter) memberNoticeEvent(detailType, guildID, userID string) *onebot.Event {
	evt := onebot.NewEvent(onebot.EventNotice, detailType)
	self := a.selfID()
	evt.Self = &self
	evt.UserID = userID
	evt.GroupID = guildID
	return evt
}

// statusUpdateEvent derives liveness purely from adapter state, never from
// a raw payload.
func (a *Adapter) statusUpdateEvent() *onebot.Event {
	evt := onebot.NewEvent(onebot.EventMeta, "status_update")
	evt.Status = a.status()
	return evt
}

// connectEvent announces the implementation once the hub transport is live.
func (a *Adapter) connectEvent() *onebot.Event {
	evt := onebot.NewEvent(onebot.EventMeta, "connect")
	evt.Version = onebot.VersionInfo()
	return evt
}
