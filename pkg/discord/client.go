// Copyright 2026 Teyda Authors

package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://discord.com/api/v10"

// APIError is a platform refusal: the REST API answered with an error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord: api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Client is the typed REST surface the adapter consumes. It carries the bot
// token; gateway traffic lives elsewhere.
type Client struct {
	http  *http.Client
	base  string
	token string
	log   zerolog.Logger
}

// NewClient builds a REST client. An empty base selects the public API.
func NewClient(token, base string, log zerolog.Logger) *Client {
	if base == "" {
		base = defaultAPIBase
	}
	return &Client{
		http:  &http.Client{},
		base:  base,
		token: token,
		log:   log.With().Str("component", "discord-api").Logger(),
	}
}

// do issues one JSON API call. out may be nil when the response body is
// irrelevant.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, path, contentType, reader, out)
}

func (c *Client) doRaw(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Message = resp.Status
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var channel Channel
	if err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (c *Client) ModifyChannelName(ctx context.Context, channelID, name string) error {
	body := map[string]string{"name": name}
	return c.do(ctx, http.MethodPatch, "/channels/"+url.PathEscape(channelID), body, nil)
}

// CreateDM opens (or reuses) the direct-message channel with a user.
func (c *Client) CreateDM(ctx context.Context, userID string) (*Channel, error) {
	body := map[string]string{"recipient_id": userID}
	var channel Channel
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", body, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// createMessagePayload is the JSON half of a message create call.
type createMessagePayload struct {
	Content          string            `json:"content,omitempty"`
	MessageReference *MessageReference `json:"message_reference,omitempty"`
}

// uploadAttachment is one file carried alongside a message create call.
type uploadAttachment struct {
	Name string
	Data []byte
}

// CreateMessage posts a message. With attachments the call switches to the
// multipart form the API requires, carrying the JSON payload in the
// payload_json part.
func (c *Client) CreateMessage(ctx context.Context, channelID string, payload createMessagePayload, files []uploadAttachment) (*Message, error) {
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	var msg Message
	if len(files) == 0 {
		if err := c.do(ctx, http.MethodPost, path, payload, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := form.WriteField("payload_json", string(encoded)); err != nil {
		return nil, err
	}
	for i, file := range files {
		part, err := form.CreateFormFile(fmt.Sprintf("files[%d]", i), file.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}
	if err := c.doRaw(ctx, http.MethodPost, path, form.FormDataContentType(), &buf, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) GetChannelMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	var msg Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	var guild Guild
	if err := c.do(ctx, http.MethodGet, "/guilds/"+url.PathEscape(guildID), nil, &guild); err != nil {
		return nil, err
	}
	return &guild, nil
}

func (c *Client) GetGuildMember(ctx context.Context, guildID, userID string) (*GuildMember, error) {
	path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID)
	var member GuildMember
	if err := c.do(ctx, http.MethodGet, path, nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) LeaveGuild(ctx context.Context, guildID string) error {
	return c.do(ctx, http.MethodDelete, "/users/@me/guilds/"+url.PathEscape(guildID), nil, nil)
}

// Download fetches attachment content from the CDN. CDN URLs are
// pre-authorized, so no token is attached.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("discord: download %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
