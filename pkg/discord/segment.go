// Copyright 2026 Teyda Authors

package discord

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/teyda/teyda/pkg/filestore"
	"github.com/teyda/teyda/pkg/onebot"
)

// mentionTextKey carries the platform rendering of a mention through a
// round trip.
const mentionTextKey = "discord.text"

var (
	errUnsupportedSegment = errors.New("discord: unsupported message segment")
	errBadFileRef         = errors.New("discord: file reference does not resolve")
	errEmptyMessage       = errors.New("discord: nothing to send")
)

// mentionPattern matches user mentions in raw message content, with or
// without the legacy nickname marker.
var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// makeAttachmentRef encodes the channel/message/attachment triple that
// re-resolves an attachment through the REST API. Snowflake ids are numeric,
// so dashes are safe separators.
func makeAttachmentRef(channelID, messageID, attachmentID string) string {
	return channelID + "-" + messageID + "-" + attachmentID
}

func parseAttachmentRef(name string) (channelID, messageID, attachmentID string, ok bool) {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// toMessage converts a Discord message into canonical segments: reply first,
// then the first attachment typed by its content type, then the content body
// split on mention markup.
func toMessage(msg *Message) onebot.Message {
	var segs onebot.Message
	if msg.MessageReference != nil && msg.MessageReference.MessageID != "" {
		segs = append(segs, onebot.Reply(msg.MessageReference.MessageID, ""))
	}
	if len(msg.Attachments) > 0 {
		att := msg.Attachments[0]
		ref := onebot.MakeFileID(Namespace, makeAttachmentRef(msg.ChannelID, msg.ID, att.ID))
		segs = append(segs, onebot.Media(attachmentSegType(att), ref))
	}
	segs = append(segs, parseContent(msg.Content)...)
	return segs
}

// attachmentSegType maps an attachment's content type onto the canonical
// media segment types, defaulting to a plain file.
func attachmentSegType(att Attachment) string {
	switch {
	case strings.HasPrefix(att.ContentType, "image/"):
		return onebot.SegImage
	case strings.HasPrefix(att.ContentType, "video/"):
		return onebot.SegVideo
	case strings.HasPrefix(att.ContentType, "audio/"):
		return onebot.SegAudio
	}
	return onebot.SegFile
}

// parseContent splits raw content on mention markup, interleaving text
// segments with mentions.
func parseContent(content string) onebot.Message {
	if content == "" {
		return nil
	}
	var segs onebot.Message
	curr := 0
	for _, match := range mentionPattern.FindAllStringSubmatchIndex(content, -1) {
		if match[0] > curr {
			segs = append(segs, onebot.Text(content[curr:match[0]]))
		}
		segs = append(segs, onebot.Mention(content[match[2]:match[3]]))
		curr = match[1]
	}
	if curr < len(content) {
		segs = append(segs, onebot.Text(content[curr:]))
	}
	return segs
}

// buildOutbound assembles the REST call for a canonical message: content
// accumulates from text and mention segments, replies set the message
// reference and media segments become attached files.
func (a *Adapter) buildOutbound(ctx context.Context, msg onebot.Message) (createMessagePayload, []uploadAttachment, error) {
	var (
		payload createMessagePayload
		files   []uploadAttachment
		content strings.Builder
	)
	for _, seg := range msg {
		switch seg.Type {
		case onebot.SegReply:
			payload.MessageReference = &MessageReference{MessageID: seg.Str("message_id")}
		case onebot.SegText:
			content.WriteString(seg.Str("text"))
		case onebot.SegMention:
			if userID := seg.Str("user_id"); userID != "" {
				content.WriteString("<@" + userID + ">")
			} else {
				// No resolvable user reference: emit as literal text.
				content.WriteString("@" + seg.Str(mentionTextKey))
			}
		case onebot.SegImage, onebot.SegVoice, onebot.SegAudio, onebot.SegVideo, onebot.SegFile:
			file, err := a.resolveOutboundFile(ctx, seg.Str("file_id"))
			if err != nil {
				return createMessagePayload{}, nil, err
			}
			files = append(files, file)
		default:
			return createMessagePayload{}, nil, errUnsupportedSegment
		}
	}

	payload.Content = content.String()
	if payload.Content == "" && len(files) == 0 {
		return createMessagePayload{}, nil, errEmptyMessage
	}
	return payload, files, nil
}

// resolveOutboundFile turns a file reference into upload bytes:
// local-namespace content comes from the store, platform-namespace content is
// re-resolved through the REST API and downloaded from the CDN.
func (a *Adapter) resolveOutboundFile(ctx context.Context, fileID string) (uploadAttachment, error) {
	ns, name, ok := onebot.ParseFileID(fileID)
	if !ok {
		return uploadAttachment{}, errBadFileRef
	}
	switch ns {
	case filestore.Namespace:
		data, _, err := a.store.Read(name)
		if err != nil {
			return uploadAttachment{}, err
		}
		return uploadAttachment{Name: name, Data: data}, nil
	case Namespace:
		att, err := a.resolveAttachment(ctx, name)
		if err != nil {
			return uploadAttachment{}, err
		}
		data, err := a.client.Download(ctx, att.URL)
		if err != nil {
			return uploadAttachment{}, err
		}
		return uploadAttachment{Name: att.Filename, Data: data}, nil
	}
	return uploadAttachment{}, errBadFileRef
}

// resolveAttachment re-resolves a platform attachment reference to its
// current metadata, including a fresh pre-authorized CDN URL.
func (a *Adapter) resolveAttachment(ctx context.Context, name string) (*Attachment, error) {
	channelID, messageID, attachmentID, ok := parseAttachmentRef(name)
	if !ok {
		return nil, errBadFileRef
	}
	msg, err := a.client.GetChannelMessage(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	for i := range msg.Attachments {
		if msg.Attachments[i].ID == attachmentID {
			return &msg.Attachments[i], nil
		}
	}
	return nil, errBadFileRef
}
