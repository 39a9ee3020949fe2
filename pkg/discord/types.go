// Copyright 2026 Teyda Authors

package discord

import (
	"encoding/json"
	"time"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Gateway intents requested at identify.
const (
	intentGuilds         = 1 << 0
	intentGuildMembers   = 1 << 1
	intentGuildMessages  = 1 << 9
	intentDirectMessages = 1 << 12
	intentMessageContent = 1 << 15
)

// gatewayPayload is the envelope of every gateway frame in both directions.
type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type readyData struct {
	SessionID string `json:"session_id"`
	User      User   `json:"user"`
}

// User is a Discord user object, reduced to the fields the bridge reads.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
	Bot           bool   `json:"bot"`
}

// Channel is a Discord channel object.
type Channel struct {
	ID      string `json:"id"`
	Type    int    `json:"type"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
}

// Attachment is a file attached to a message, addressable through the
// channel/message/attachment id triple.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// MessageReference points at the message a reply targets.
type MessageReference struct {
	MessageID string `json:"message_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
}

// Message is a Discord message object.
type Message struct {
	ID               string            `json:"id"`
	ChannelID        string            `json:"channel_id"`
	GuildID          string            `json:"guild_id"`
	Author           *User             `json:"author"`
	Content          string            `json:"content"`
	Timestamp        time.Time         `json:"timestamp"`
	Attachments      []Attachment      `json:"attachments"`
	MessageReference *MessageReference `json:"message_reference"`
}

// Guild is a Discord guild object.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GuildMember is a guild membership record.
type GuildMember struct {
	User *User  `json:"user"`
	Nick string `json:"nick"`
}

// guildMemberAddData is the GUILD_MEMBER_ADD dispatch payload: a member with
// the guild id inlined.
type guildMemberAddData struct {
	GuildMember
	GuildID string `json:"guild_id"`
}

// guildMemberRemoveData is the GUILD_MEMBER_REMOVE dispatch payload.
type guildMemberRemoveData struct {
	GuildID string `json:"guild_id"`
	User    User   `json:"user"`
}
