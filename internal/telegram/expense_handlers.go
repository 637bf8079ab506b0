package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/expensesync/internal/database"
	"github.com/mixelka/expensesync/internal/formatter"
)

const (
	topMerchantsLimit = 10
	reviewPageSize    = 10
)

// handleSpend handles /spend command
// Usage: /spend [days]
func (b *Bot) handleSpend(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	_, args := commandArgs(msg.Text)
	days, err := parseDays(args)
	if err != nil {
		b.reply(ctx, msg, err.Error())
		return
	}

	summary, err := b.analytics.Summary(ctx, msg.From.ID, b.userRange(days))
	if err != nil {
		b.logger.Error("failed to build summary", "user_id", msg.From.ID, "error", err)
		b.reply(ctx, msg, "Failed to load spend")
		return
	}
	b.reply(ctx, msg, b.formatter.FormatSummary(summary))
}

// handleTop handles /top command
// Usage: /top [days]
func (b *Bot) handleTop(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	_, args := commandArgs(msg.Text)
	days, err := parseDays(args)
	if err != nil {
		b.reply(ctx, msg, err.Error())
		return
	}

	r := b.userRange(days)
	merchants, err := b.analytics.TopMerchants(ctx, msg.From.ID, r, topMerchantsLimit)
	if err != nil {
		b.logger.Error("failed to load top merchants", "user_id", msg.From.ID, "error", err)
		b.reply(ctx, msg, "Failed to load merchants")
		return
	}
	b.reply(ctx, msg, b.formatter.FormatTopMerchants(r, merchants))
}

// handleCards handles /cards command
func (b *Bot) handleCards(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	spend, err := b.analytics.SpendByCard(ctx, userID, b.userRange(0))
	if err != nil {
		b.logger.Error("failed to load card spend", "user_id", userID, "error", err)
		b.reply(ctx, msg, "Failed to load cards")
		return
	}
	progress, err := b.analytics.CardMilestones(ctx, userID)
	if err != nil {
		b.logger.Error("failed to load milestones", "user_id", userID, "error", err)
		b.reply(ctx, msg, "Failed to load card milestones")
		return
	}
	b.reply(ctx, msg, b.formatter.FormatCards(spend, progress))
}

// handleRules handles /rules command
func (b *Bot) handleRules(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	rules, err := b.expenses.Rules(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("failed to load rules", "user_id", msg.From.ID, "error", err)
		b.reply(ctx, msg, "Failed to load rules")
		return
	}
	b.reply(ctx, msg, b.formatter.FormatRules(rules))
}

// handleRule handles /rule command
// Usage: /rule merchant = category[/subcategory]
func (b *Bot) handleRule(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	_, args := commandArgs(msg.Text)
	merchant, upd, err := parseRule(args)
	if err != nil {
		b.reply(ctx, msg, "Usage: <code>/rule merchant = category[/subcategory]</code>")
		return
	}

	n, err := b.expenses.CategorizeMerchant(ctx, msg.From.ID, merchant, upd)
	if err != nil {
		b.logger.Error("failed to categorize merchant", "user_id", msg.From.ID, "error", err)
		b.reply(ctx, msg, fmt.Sprintf("Failed to save the rule: %s", formatter.Escape(err.Error())))
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Rule saved: <b>%s</b> → %s\n%d existing transactions updated",
		formatter.Escape(merchant), formatter.Escape(upd.Category), n))
}

// handleRecat handles /recat command
// Usage: /recat id category[/subcategory]
func (b *Bot) handleRecat(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	_, args := commandArgs(msg.Text)
	id, upd, err := parseRecat(args)
	if err != nil {
		b.reply(ctx, msg, "Usage: <code>/recat 42 Groceries/Online</code>")
		return
	}

	t, err := b.expenses.UpdateTransaction(ctx, msg.From.ID, id, upd)
	if errors.Is(err, database.ErrNotFound) {
		b.reply(ctx, msg, "Transaction not found")
		return
	}
	if err != nil {
		b.logger.Error("failed to update transaction", "user_id", msg.From.ID, "id", id, "error", err)
		b.reply(ctx, msg, "Failed to update the transaction")
		return
	}
	b.reply(ctx, msg, "Updated: "+b.formatter.FormatTransaction(t))
}

// handleReview handles /review command
func (b *Bot) handleReview(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	txs, total, err := b.expenses.ReviewQueue(ctx, msg.From.ID, reviewPageSize)
	if err != nil {
		b.logger.Error("failed to load review queue", "user_id", msg.From.ID, "error", err)
		b.reply(ctx, msg, "Failed to load the review queue")
		return
	}

	var kb *models.InlineKeyboardMarkup
	if len(txs) > 0 {
		kb = formatter.BuildReviewKeyboard(txs)
	}
	b.send(ctx, msg.Chat.ID, b.formatter.FormatReviewQueue(txs, total), kb)
}

// handleConfirm accepts the category shown on a review button
func (b *Bot) handleConfirm(ctx context.Context, callback *models.CallbackQuery, data formatter.CallbackData) {
	id, err := strconv.ParseInt(data.ID, 10, 64)
	if err != nil {
		b.answerCallback(ctx, callback.ID, "Invalid transaction", false)
		return
	}

	t, err := b.expenses.Confirm(ctx, callback.From.ID, id)
	if errors.Is(err, database.ErrNotFound) {
		b.answerCallback(ctx, callback.ID, "Transaction not found", false)
		return
	}
	if err != nil {
		b.logger.Error("failed to confirm transaction", "user_id", callback.From.ID, "id", id, "error", err)
		b.answerCallback(ctx, callback.ID, "Failed to confirm", true)
		return
	}
	b.answerCallback(ctx, callback.ID, fmt.Sprintf("#%d confirmed as %s", t.ID, t.Category), false)
}
