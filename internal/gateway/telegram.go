package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMessageLimit = 4096
	telegramCaptionLimit = 1024
)

type TelegramGateway struct {
	Bot       *tgbotapi.BotAPI
	Assistant Assistant
	Sessions  *ChatSessions
}

func NewTelegramGateway(token string, a Assistant, sessions *ChatSessions) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:       bot,
		Assistant: a,
		Sessions:  sessions,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
		reply := HandleChat(context.Background(), tg.Assistant, tg.Sessions, chatID, update.Message.Text)

		if reply.ImagePath != "" {
			photo := tgbotapi.NewPhoto(update.Message.Chat.ID, tgbotapi.FilePath(reply.ImagePath))
			photo.Caption = truncate(reply.Text, telegramCaptionLimit)
			_, err := tg.Bot.Send(photo)
			if err == nil {
				continue
			}
			log.Printf("Error sending chart to %s: %v", chatID, err)
		}

		if err := tg.Send(chatID, reply.Text); err != nil {
			log.Printf("Error replying to %s: %v", chatID, err)
		}
	}
	return nil
}

// Send posts text to a chat without a parse mode.
func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, truncate(text, telegramMessageLimit))
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
