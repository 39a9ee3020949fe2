// Copyright 2026 Teyda Authors

package telegram

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/teyda/teyda/pkg/filestore"
	"github.com/teyda/teyda/pkg/onebot"
)

// Platform-specific segment types.
const (
	SegSticker   = "telegram.sticker"
	SegAnimation = "telegram.animation"
)

// mentionTextKey carries the platform rendering of a mention through a
// round trip.
const mentionTextKey = "telegram.text"

var (
	errUnsupportedSegment = errors.New("telegram: unsupported message segment")
	errBadFileRef         = errors.New("telegram: file reference does not resolve")
	errEmptyMessage       = errors.New("telegram: nothing to send")
)

// toMessage converts a Telegram message into canonical segments: reply and
// location first, then the single highest-priority media attachment, then
// the text body split on mention entities. Extra media types beyond the
// first are not translated; the native API model carries one media item per
// message.
func toMessage(msg *tgbotapi.Message) onebot.Message {
	var segs onebot.Message
	if msg.ReplyToMessage != nil {
		var userID string
		if msg.ReplyToMessage.From != nil {
			userID = strconv.FormatInt(msg.ReplyToMessage.From.ID, 10)
		}
		segs = append(segs, onebot.Reply(strconv.Itoa(msg.ReplyToMessage.MessageID), userID))
	}
	if msg.Location != nil {
		segs = append(segs, onebot.Location(msg.Location.Latitude, msg.Location.Longitude, "", ""))
	}
	if media, ok := mediaSegment(msg); ok {
		segs = append(segs, media)
	}

	text := msg.Text
	entities := msg.Entities
	if text == "" && msg.Caption != "" {
		text = msg.Caption
		entities = msg.CaptionEntities
	}
	segs = append(segs, parseEntityText(text, entities)...)
	return segs
}

// mediaSegment picks the primary media attachment in fixed priority order.
func mediaSegment(msg *tgbotapi.Message) (onebot.Segment, bool) {
	switch {
	case len(msg.Photo) > 0:
		photos := make([]tgbotapi.PhotoSize, len(msg.Photo))
		copy(photos, msg.Photo)
		sort.Slice(photos, func(i, j int) bool { return photos[i].FileSize > photos[j].FileSize })
		return onebot.Media(onebot.SegImage, onebot.MakeFileID(Namespace, photos[0].FileID)), true
	case msg.Sticker != nil:
		return onebot.Segment{Type: SegSticker, Data: map[string]any{
			"file_id":  onebot.MakeFileID(Namespace, msg.Sticker.FileID),
			"emoji":    msg.Sticker.Emoji,
			"set_name": msg.Sticker.SetName,
		}}, true
	case msg.Animation != nil:
		return onebot.Media(SegAnimation, onebot.MakeFileID(Namespace, msg.Animation.FileID)), true
	case msg.Voice != nil:
		return onebot.Media(onebot.SegVoice, onebot.MakeFileID(Namespace, msg.Voice.FileID)), true
	case msg.Video != nil:
		return onebot.Media(onebot.SegVideo, onebot.MakeFileID(Namespace, msg.Video.FileID)), true
	case msg.Document != nil:
		return onebot.Media(onebot.SegFile, onebot.MakeFileID(Namespace, msg.Document.FileID)), true
	case msg.Audio != nil:
		return onebot.Media(onebot.SegAudio, onebot.MakeFileID(Namespace, msg.Audio.FileID)), true
	}
	return onebot.Segment{}, false
}

// parseEntityText splits a text body on its mention entities. Telegram
// entity offsets count UTF-16 code units, so the body is sliced in that
// encoding. Gaps between entities become text segments; trailing text is
// appended when non-empty.
func parseEntityText(text string, entities []tgbotapi.MessageEntity) onebot.Message {
	if text == "" {
		return nil
	}
	units := utf16.Encode([]rune(text))
	var segs onebot.Message
	curr := 0
	for _, e := range entities {
		if e.Type != "mention" && e.Type != "text_mention" {
			continue
		}
		end := e.Offset + e.Length
		if e.Offset < curr || end > len(units) {
			continue
		}
		if e.Offset > curr {
			segs = append(segs, onebot.Text(string(utf16.Decode(units[curr:e.Offset]))))
		}
		span := string(utf16.Decode(units[e.Offset:end]))
		var userID string
		if e.Type == "text_mention" && e.User != nil {
			userID = strconv.FormatInt(e.User.ID, 10)
		}
		seg := onebot.Mention(userID)
		seg.Data[mentionTextKey] = strings.TrimPrefix(span, "@")
		segs = append(segs, seg)
		curr = end
	}
	if curr < len(units) {
		segs = append(segs, onebot.Text(string(utf16.Decode(units[curr:]))))
	}
	return segs
}

// toChattable builds the single outbound API call for a canonical message.
// The first media segment selects the method and payload shape; reply
// segments set the reply target; mention and text segments accumulate into
// the text body with entity ranges. Media past the first is dropped, any
// other segment type is an error.
func (a *Adapter) toChattable(chatID int64, msg onebot.Message) (tgbotapi.Chattable, error) {
	var (
		replyTo  int
		media    *onebot.Segment
		text     strings.Builder
		entities []tgbotapi.MessageEntity
		offset   int
	)
	appendText := func(s string) {
		text.WriteString(s)
		offset += utf16Len(s)
	}

	for i := range msg {
		seg := msg[i]
		switch seg.Type {
		case onebot.SegReply:
			id, err := strconv.Atoi(seg.Str("message_id"))
			if err != nil {
				return nil, errUnsupportedSegment
			}
			replyTo = id
		case onebot.SegText:
			appendText(seg.Str("text"))
		case onebot.SegMention:
			mtext := seg.Str(mentionTextKey)
			userID, err := strconv.ParseInt(seg.Str("user_id"), 10, 64)
			if err != nil {
				// No resolvable user reference: emit as literal text.
				appendText("@" + mtext)
				continue
			}
			display := a.mentionDisplay(userID, mtext)
			start := offset
			appendText(display)
			entities = append(entities, tgbotapi.MessageEntity{
				Type:   "text_mention",
				Offset: start,
				Length: utf16Len(display),
				User:   &tgbotapi.User{ID: userID},
			})
		default:
			if isMediaSegment(seg) {
				if media == nil {
					media = &msg[i]
				}
				continue
			}
			return nil, errUnsupportedSegment
		}
	}

	if media != nil {
		return a.mediaChattable(chatID, *media, text.String(), entities, replyTo)
	}
	if text.Len() == 0 {
		return nil, errEmptyMessage
	}
	cfg := tgbotapi.NewMessage(chatID, text.String())
	cfg.Entities = entities
	cfg.ReplyToMessageID = replyTo
	return cfg, nil
}

func isMediaSegment(seg onebot.Segment) bool {
	return seg.IsMedia() || seg.Type == SegSticker || seg.Type == SegAnimation
}

func (a *Adapter) mediaChattable(chatID int64, media onebot.Segment, caption string, entities []tgbotapi.MessageEntity, replyTo int) (tgbotapi.Chattable, error) {
	if media.Type == onebot.SegLocation {
		cfg := tgbotapi.NewLocation(chatID, media.Float("latitude"), media.Float("longitude"))
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	}

	file, err := a.mediaFile(media)
	if err != nil {
		return nil, err
	}
	switch media.Type {
	case onebot.SegImage:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	case onebot.SegFile:
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	case onebot.SegAudio:
		cfg := tgbotapi.NewAudio(chatID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	case onebot.SegVideo:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	case onebot.SegVoice:
		cfg := tgbotapi.NewVoice(chatID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	case SegAnimation:
		cfg := tgbotapi.NewAnimation(chatID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	case SegSticker:
		cfg := tgbotapi.NewSticker(chatID, file)
		cfg.ReplyToMessageID = replyTo
		return cfg, nil
	}
	return nil, errUnsupportedSegment
}

// mediaFile resolves a media segment's file reference: local-namespace
// content is read from the store and attached as bytes, platform-namespace
// content passes through by native file id.
func (a *Adapter) mediaFile(media onebot.Segment) (tgbotapi.RequestFileData, error) {
	ns, name, ok := onebot.ParseFileID(media.Str("file_id"))
	if !ok {
		return nil, errBadFileRef
	}
	switch ns {
	case filestore.Namespace:
		data, _, err := a.store.Read(name)
		if err != nil {
			return nil, err
		}
		return tgbotapi.FileBytes{Name: name, Bytes: data}, nil
	case Namespace:
		return tgbotapi.FileID(name), nil
	}
	return nil, errBadFileRef
}

// mentionDisplay resolves a user's display form through the platform,
// falling back to the carried mention text when the lookup fails.
func (a *Adapter) mentionDisplay(userID int64, fallback string) string {
	chat, err := a.apiClient().GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
	})
	if err != nil {
		a.log.Debug().Err(err).Int64("user_id", userID).Msg("Mention lookup failed")
		return fallback
	}
	if name := displayName(chat.FirstName, chat.LastName); name != "" {
		return name
	}
	return fallback
}

// displayName joins first and last name, falling back to first only.
func displayName(first, last string) string {
	if last != "" && first != "" {
		return first + " " + last
	}
	return first
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
