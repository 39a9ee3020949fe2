// Copyright 2026 Teyda Authors

// Package onebot holds the canonical OneBot 12 data model shared by all
// platform adapters: message segments, events, action requests/responses and
// the hub-server contract the adapters are driven through.
package onebot

// Segment is one typed node of message content. The Data keys are fixed per
// segment type; platform-specific extension keys are namespaced with the
// platform prefix (e.g. "telegram.text").
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Message is an ordered sequence of segments. Order is significant and must
// survive translation in both directions.
type Message []Segment

// Standard segment types.
const (
	SegText     = "text"
	SegMention  = "mention"
	SegReply    = "reply"
	SegImage    = "image"
	SegFile     = "file"
	SegAudio    = "audio"
	SegVideo    = "video"
	SegVoice    = "voice"
	SegLocation = "location"
)

// Text builds a plain text segment.
func Text(text string) Segment {
	return Segment{Type: SegText, Data: map[string]any{"text": text}}
}

// Mention builds a mention segment. An empty userID means the mention does
// not resolve to a known user on the platform.
func Mention(userID string) Segment {
	return Segment{Type: SegMention, Data: map[string]any{"user_id": userID}}
}

// Reply builds a reply segment pointing at a platform-native message id.
func Reply(messageID, userID string) Segment {
	return Segment{Type: SegReply, Data: map[string]any{
		"message_id": messageID,
		"user_id":    userID,
	}}
}

// Media builds a media segment of the given type referencing a file id.
func Media(segType, fileID string) Segment {
	return Segment{Type: segType, Data: map[string]any{"file_id": fileID}}
}

// Location builds a location segment.
func Location(latitude, longitude float64, title, content string) Segment {
	return Segment{Type: SegLocation, Data: map[string]any{
		"latitude":  latitude,
		"longitude": longitude,
		"title":     title,
		"content":   content,
	}}
}

// Str returns a string value from the segment data, or "" when absent or of
// another type.
func (s Segment) Str(key string) string {
	v, _ := s.Data[key].(string)
	return v
}

// Float returns a numeric value from the segment data. JSON numbers decode
// as float64, so this covers both hand-built and wire-decoded segments.
func (s Segment) Float(key string) float64 {
	switch v := s.Data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// IsMedia reports whether the segment type selects an outbound media payload.
func (s Segment) IsMedia() bool {
	switch s.Type {
	case SegImage, SegFile, SegAudio, SegVideo, SegVoice, SegLocation:
		return true
	}
	return false
}
