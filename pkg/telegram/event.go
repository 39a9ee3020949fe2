// Copyright 2026 Teyda Authors

package telegram

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/teyda/teyda/pkg/onebot"
)

// handleUpdate demultiplexes one polled update into canonical events.
// Update kinds without a canonical mapping are dropped silently.
func (a *Adapter) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		a.handleMessage(update.Message)
	case update.MyChatMember != nil:
		a.handleMyChatMember(update.MyChatMember)
	default:
		a.log.Trace().Int("update_id", update.UpdateID).Msg("Unhandled update type")
	}
}

func (a *Adapter) handleMessage(msg *tgbotapi.Message) {
	// Membership service messages become notices, not message events.
	if len(msg.NewChatMembers) > 0 {
		for _, user := range msg.NewChatMembers {
			a.server.Send(a.memberNoticeEvent("group_member_increase", msg.Chat, user.ID, msg.Date))
		}
		return
	}
	if msg.LeftChatMember != nil {
		a.server.Send(a.memberNoticeEvent("group_member_decrease", msg.Chat, msg.LeftChatMember.ID, msg.Date))
		return
	}

	if msg.Chat == nil {
		return
	}
	switch msg.Chat.Type {
	case "private", "group", "supergroup":
		a.server.Send(a.messageEvent(msg))
	}
}

// messageEvent translates a chat message. Event time comes from the raw
// payload, the message id is the reversible chat-scope/native-id composite
// and the body runs through the segment codec.
func (a *Adapter) messageEvent(msg *tgbotapi.Message) *onebot.Event {
	detailType := "group"
	if msg.Chat.Type == "private" {
		detailType = "private"
	}

	evt := onebot.NewEvent(onebot.EventMessage, detailType)
	evt.Time = float64(msg.Date)
	self := a.selfID()
	evt.Self = &self
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	evt.MessageID = onebot.MakeMessageID(chatID, strconv.Itoa(msg.MessageID))
	evt.Message = toMessage(msg)
	evt.AltMessage = altText(msg)
	if msg.From != nil {
		evt.UserID = strconv.FormatInt(msg.From.ID, 10)
	}
	if detailType == "group" {
		evt.GroupID = chatID
	}
	return evt
}

// altText is the platform's plain-text rendering of a message.
func altText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// memberNoticeEvent builds a group membership notice with the event time
// taken from the raw payload.
func (a *Adapter) memberNoticeEvent(detailType string, chat *tgbotapi.Chat, userID int64, date int) *onebot.Event {
	evt := onebot.NewEvent(onebot.EventNotice, detailType)
	evt.Time = float64(date)
	self := a.selfID()
	evt.Self = &self
	evt.UserID = strconv.FormatInt(userID, 10)
	if chat != nil {
		evt.GroupID = strconv.FormatInt(chat.ID, 10)
	}
	return evt
}

// handleMyChatMember maps private-chat membership transitions onto friend
// notices.
func (a *Adapter) handleMyChatMember(cmu *tgbotapi.ChatMemberUpdated) {
	if cmu.Chat.Type != "private" {
		return
	}
	var detailType string
	switch cmu.NewChatMember.Status {
	case "member":
		detailType = "friend_increase"
	case "left", "kicked":
		detailType = "friend_decrease"
	default:
		return
	}

	evt := onebot.NewEvent(onebot.EventNotice, detailType)
	evt.Time = float64(cmu.Date)
	self := a.selfID()
	evt.Self = &self
	evt.UserID = strconv.FormatInt(cmu.From.ID, 10)
	a.server.Send(evt)
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
