package notify

import (
	"context"
	"fmt"

	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/events"
)

// RegisterHandlers subscribes the Telegram mirror to ticket lifecycle events.
func RegisterHandlers(dispatcher events.Dispatcher, outbox *TelegramOutbox) {
	if dispatcher == nil || outbox == nil {
		return
	}

	dispatcher.Subscribe(events.EventTicketOpened, func(_ context.Context, ev events.Event) error {
		outbox.Enqueue(fmt.Sprintf("🎫 Новый тикет: %s", ev.Ticket.ChannelName))
		return nil
	})

	dispatcher.Subscribe(events.EventTicketClosed, func(_ context.Context, ev events.Event) error {
		outbox.Enqueue(fmt.Sprintf("✅ Тикет закрыт: %s", ev.Ticket.ChannelName))
		return nil
	})

	dispatcher.Subscribe(events.EventTicketMessage, func(_ context.Context, ev events.Event) error {
		if ev.Message == nil {
			return nil
		}
		icon := "💬"
		if ev.FirstMessage {
			icon = "🆕"
		}
		outbox.Enqueue(fmt.Sprintf("%s %s (%s): %s",
			icon, ev.Ticket.ChannelName, ev.Message.AuthorUsername,
			truncate(ev.Message.Content, 200)))
		return nil
	})

	dispatcher.Subscribe(events.EventTimerElapsed, func(_ context.Context, ev events.Event) error {
		switch ev.Timer {
		case domain.TimerClosing:
			outbox.Enqueue(fmt.Sprintf("⏰ Время на закрытие тикета %s вышло", ev.Ticket.ChannelName))
		default:
			outbox.Enqueue(fmt.Sprintf("⏳ Тикет %s без ответа пользователя", ev.Ticket.ChannelName))
		}
		return nil
	})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
