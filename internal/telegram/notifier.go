// Package telegram pushes out-of-band alerts through the Telegram Bot API
// to users who linked a Telegram chat to their account.
package telegram

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mingle/backend/internal/directory"
)

// Notifier sends missed-call alerts. It satisfies chathub.MissedCallAlerter.
type Notifier struct {
	BotAPI *tgbotapi.BotAPI
	Dir    directory.Directory
}

func NewNotifier(token string, dir directory.Directory) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("telegram: authorized on account %s", bot.Self.UserName)
	return &Notifier{BotAPI: bot, Dir: dir}, nil
}

// MissedCall alerts a user that a call rang out. Users without a linked
// Telegram chat are skipped silently; everything here is best-effort.
func (n *Notifier) MissedCall(calleeID, callerName string, isVideo bool) {
	user, err := n.Dir.GetUserByID(calleeID)
	if err != nil {
		log.Printf("telegram: lookup of %s failed: %v", calleeID, err)
		return
	}
	if user.TelegramChatID == 0 {
		return
	}

	kind := "call"
	if isVideo {
		kind = "video call"
	}
	text := fmt.Sprintf("You missed a %s from %s", kind, callerName)
	if _, err := n.BotAPI.Send(tgbotapi.NewMessage(user.TelegramChatID, text)); err != nil {
		log.Printf("telegram: alert to %s failed: %v", calleeID, err)
	}
}
