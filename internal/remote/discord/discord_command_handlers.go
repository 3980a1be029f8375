package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) handleStatusRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	words := strings.Fields(m.Content)
	if len(words) < 2 {
		s.ChannelMessageSend(m.ChannelID, "```\n"+b.status.Summary()+"\n```")
		return
	}

	for _, account := range words[1:] {
		st, found := b.status.Get(account)
		if !found {
			s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("No login attempt recorded for **%s**", account))
			continue
		}
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("**%s**: %s\n%s", account, st.Stage, st.Message))
	}
}

func (b *Bot) handleHelpRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	embed := &discordgo.MessageEmbed{
		Title: "Available commands",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "!status [account...]", Value: "Last known login stage of every account, or of the given ones"},
			{Name: "!help", Value: "This message"},
		},
	}
	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}
