package services

import (
	"errors"
	"html"
	"sync"

	tele "gopkg.in/telebot.v3"
)

// Bot sends alerts through the Telegram bot API. It never polls for updates.
type Bot struct {
	token string

	once     sync.Once
	instance *tele.Bot
	initErr  error
}

func NewBot(token string) (*Bot, error) {
	if token == "" {
		return nil, errors.New("bot token is empty")
	}
	return &Bot{token: token}, nil
}

func (bot *Bot) client() (*tele.Bot, error) {
	bot.once.Do(func() {
		bot.instance, bot.initErr = tele.NewBot(tele.Settings{
			Token:   bot.token,
			Offline: true,
		})
	})
	return bot.instance, bot.initErr
}

func (bot *Bot) Send(chatID int64, text string) error {
	b, err := bot.client()
	if err != nil {
		return err
	}

	_, err = b.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}

func alertText(title, body, link string) string {
	text := "<b>" + html.EscapeString(title) + "</b>"
	if body != "" {
		text += "\n" + html.EscapeString(body)
	}
	if link != "" {
		text += "\n" + html.EscapeString(link)
	}
	return text
}
