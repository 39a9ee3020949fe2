// Copyright 2026 Teyda Authors

package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the platform-client surface the adapter consumes: a fixed set of
// named, typed remote calls. *tgbotapi.BotAPI satisfies it; tests substitute
// a fake.
type API interface {
	GetMe() (tgbotapi.User, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	GetFileDirectURL(fileID string) (string, error)
}

var _ API = (*tgbotapi.BotAPI)(nil)

// dial constructs the real Bot API client. NewBotAPI performs a getMe probe
// internally, so a nil error doubles as a successful identity check.
func dial(cfg Config) (API, error) {
	if cfg.APIEndpoint != "" {
		return tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, cfg.APIEndpoint)
	}
	return tgbotapi.NewBotAPI(cfg.Token)
}
