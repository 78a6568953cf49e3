package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"watchbot/internal/model"
	"watchbot/internal/scheduler"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Search Watch Bot!

Save search queries and get notified when new results appear.

Quick start:
1. /add <name> <results-url> — watch a saved search
2. /list — show your watches
3. /check <id> — run a check right now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Watch management:
/add <name> <results-url> — watch a saved search
/list — show all watches
/remove <id> — delete a watch
/pause <id> — pause checking
/resume <id> — resume checking (also clears a degraded flag)

Polling:
/check <id> — force a check now
/status — last cycle summary`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	name, query, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /add <name> <results-url>")
		return
	}

	sub := &model.Subscription{
		ChatID:   chatID,
		Name:     name,
		Query:    query,
		IsActive: true,
	}
	if err := b.store.CreateSubscription(ctx, sub); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save watch: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Watch added!\n#%d %s\nQuery: %s\nFirst results arrive with the next cycle.",
		sub.ID, sub.Name, sub.Query))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check now", fmt.Sprintf("check:%d", sub.ID)),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send add confirmation", "error", err)
	}
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSubscriptionList(subs))
}

// handleRemove asks for confirmation; the deletion itself runs from
// the inline button's callback.
func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}

	sub, err := b.store.GetSubscription(ctx, id)
	if err != nil || sub.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Watch #%d not found.", id))
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Delete #%d \"%s\"? This cannot be undone.", id, sub.Name))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("delete:%d", id)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send delete confirmation", "error", err)
	}
}

func (b *Bot) deleteSubscription(ctx context.Context, chatID, id int64) {
	sub, err := b.store.GetSubscription(ctx, id)
	if err != nil || sub.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Watch #%d not found.", id))
		return
	}

	if err := b.store.DeleteSubscription(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to remove watch: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Watch #%d \"%s\" removed.", id, sub.Name))
}

func (b *Bot) handlePause(ctx context.Context, chatID int64, args string) {
	b.setActive(ctx, chatID, args, false)
}

func (b *Bot) handleResume(ctx context.Context, chatID int64, args string) {
	b.setActive(ctx, chatID, args, true)
}

func (b *Bot) setActive(ctx context.Context, chatID int64, args string, active bool) {
	verb := "paused"
	usage := "Usage: /pause <id>"
	if active {
		verb = "resumed"
		usage = "Usage: /resume <id>"
	}

	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, usage)
		return
	}

	sub, err := b.store.GetSubscription(ctx, id)
	if err != nil || sub.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Watch #%d not found.", id))
		return
	}

	sub.IsActive = active
	if active {
		// Resuming counts as a user edit: un-park a degraded watch.
		sub.Degraded = false
	}
	if err := b.store.UpdateSubscription(ctx, sub); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Watch #%d \"%s\" %s.", id, sub.Name, verb))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}

	sub, err := b.store.GetSubscription(ctx, id)
	if err != nil || sub.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Watch #%d not found.", id))
		return
	}
	if b.checker == nil {
		b.reply(chatID, "Checking is not available right now.")
		return
	}

	if err := b.checker.TriggerCheck(ctx, id); err != nil {
		if errors.Is(err, scheduler.ErrCheckInFlight) {
			b.reply(chatID, fmt.Sprintf("Watch #%d is already being checked.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Check failed: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Checked #%d \"%s\". New results, if any, were sent above.", id, sub.Name))
}

func (b *Bot) handleStatus(chatID int64) {
	if b.checker == nil {
		b.reply(chatID, "Status is not available right now.")
		return
	}
	b.reply(chatID, FormatStatus(b.checker.Status()))
}
