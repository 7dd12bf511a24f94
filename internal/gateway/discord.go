package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
)

const discordMessageLimit = 2000

type DiscordGateway struct {
	Session   *discordgo.Session
	Assistant Assistant
	Sessions  *ChatSessions
}

func NewDiscordGateway(token string, a Assistant, sessions *ChatSessions) (*DiscordGateway, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent

	g := &DiscordGateway{
		Session:   dg,
		Assistant: a,
		Sessions:  sessions,
	}
	dg.AddHandler(g.onMessage)
	return g, nil
}

func (g *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)

	reply := HandleChat(context.Background(), g.Assistant, g.Sessions, m.ChannelID, m.Content)
	text := truncate(reply.Text, discordMessageLimit)

	if reply.ImagePath != "" {
		err := sendFile(s, m.ChannelID, text, reply.ImagePath)
		if err == nil {
			return
		}
		log.Printf("Error sending chart to %s: %v", m.ChannelID, err)
	}

	if err := g.Send(m.ChannelID, text); err != nil {
		log.Printf("Error replying to %s: %v", m.ChannelID, err)
	}
}

func sendFile(s *discordgo.Session, channelID, text, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = s.ChannelFileSendWithMessage(channelID, text, filepath.Base(path), f)
	return err
}

func (g *DiscordGateway) Start() error {
	if err := g.Session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	log.Printf("Discord gateway connected as %s", g.Session.State.User.Username)
	return nil
}

func (g *DiscordGateway) Send(chatID string, text string) error {
	_, err := g.Session.ChannelMessageSend(chatID, truncate(text, discordMessageLimit))
	return err
}

func (g *DiscordGateway) Stop() error {
	return g.Session.Close()
}
