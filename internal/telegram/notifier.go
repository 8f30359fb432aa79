package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

// Notifier delivers fired reminders to their chat.
// It satisfies scheduler.Deliverer.
type Notifier struct {
	bot Sender
}

func NewNotifier(bot Sender) *Notifier {
	return &Notifier{bot: bot}
}

func (n *Notifier) Deliver(ctx context.Context, r domain.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(r.ChannelID, deliveryText(r))); err != nil {
		return fmt.Errorf("%w: chat %d: %w", domain.ErrDelivery, r.ChannelID, err)
	}
	return nil
}

func deliveryText(r domain.Reminder) string {
	text := fmt.Sprintf(deliveryFmt, r.ID, r.Content)
	if r.Repeat.Recurring() {
		text += "\n\n🔁 " + r.Repeat.String()
	}
	if r.MessageLink != "" {
		text += "\n" + r.MessageLink
	}
	return text
}
