package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/expensesync/internal/analytics"
	appmodels "github.com/mixelka/expensesync/pkg/models"
)

const maxDays = 366

// matchCommand matches "/cmd" and "/cmd@botname" as the first word only, so
// that /rule does not also catch /rules.
func matchCommand(cmd string) bot.MatchFunc {
	return func(update *models.Update) bool {
		if update.Message == nil {
			return false
		}
		name, _ := commandArgs(update.Message.Text)
		return name == cmd
	}
}

// commandArgs splits "/cmd@bot rest of text" into "/cmd" and "rest of text"
func commandArgs(text string) (string, string) {
	text = strings.TrimSpace(text)
	name, rest, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// parseCategory splits "Category/Subcategory"
func parseCategory(s string) (appmodels.CategoryUpdate, error) {
	category, subcategory, _ := strings.Cut(s, "/")
	upd := appmodels.CategoryUpdate{
		Category:    strings.TrimSpace(category),
		Subcategory: strings.TrimSpace(subcategory),
	}
	if upd.Category == "" {
		return upd, errors.New("category is required")
	}
	return upd, nil
}

// parseRecat parses "id category[/subcategory]"
func parseRecat(args string) (int64, appmodels.CategoryUpdate, error) {
	idStr, rest, _ := strings.Cut(args, " ")
	id, err := strconv.ParseInt(strings.TrimPrefix(idStr, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appmodels.CategoryUpdate{}, fmt.Errorf("invalid transaction id %q", idStr)
	}
	upd, err := parseCategory(rest)
	return id, upd, err
}

// parseRule parses "merchant = category[/subcategory]"
func parseRule(args string) (string, appmodels.CategoryUpdate, error) {
	merchant, rest, ok := strings.Cut(args, "=")
	merchant = strings.TrimSpace(merchant)
	if !ok || merchant == "" {
		return "", appmodels.CategoryUpdate{}, errors.New("expected merchant = category")
	}
	upd, err := parseCategory(rest)
	return merchant, upd, err
}

// parseDays reads an optional day count; 0 means the default range
func parseDays(args string) (int, error) {
	if args == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(args, "d"))
	if err != nil || n <= 0 || n > maxDays {
		return 0, fmt.Errorf("days must be between 1 and %d", maxDays)
	}
	return n, nil
}

// reply sends an HTML message to the chat of msg
func (b *Bot) reply(ctx context.Context, msg *models.Message, text string) {
	b.send(ctx, msg.Chat.ID, text, nil)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if _, err := b.bot.SendMessage(ctx, params); err != nil {
		b.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

// editMessage replaces the text of a message the bot sent earlier
func (b *Bot) editMessage(ctx context.Context, chatID int64, msgID int, text string, keyboard *models.InlineKeyboardMarkup) error {
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: msgID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	_, err := b.bot.EditMessageText(ctx, params)
	return err
}

// deleteMessage deletes a message
func (b *Bot) deleteMessage(ctx context.Context, chatID int64, msgID int) error {
	_, err := b.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: msgID,
	})
	return err
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(ctx context.Context, callbackID, text string, showAlert bool) {
	_, err := b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	})
	if err != nil {
		b.logger.Warn("failed to answer callback", "error", err)
	}
}

// userRange is the current month, or the last n days when n > 0
func (b *Bot) userRange(days int) appmodels.DateRange {
	now := b.now()
	if days > 0 {
		return analytics.LastDays(now, days)
	}
	return analytics.MonthRange(now)
}
