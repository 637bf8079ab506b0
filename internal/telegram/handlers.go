package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/expensesync/internal/database"
	"github.com/mixelka/expensesync/internal/formatter"
	appmodels "github.com/mixelka/expensesync/pkg/models"
)

// handleConnect handles /connect command
// Usage: /connect email password [imap_server]
func (b *Bot) handleConnect(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	if msg.Chat.Type != models.ChatTypePrivate {
		b.reply(ctx, msg, "Send /connect in a private chat with the bot: the message carries your password.")
		return
	}

	_, args := commandArgs(msg.Text)
	parts := strings.Fields(args)
	if len(parts) < 2 || len(parts) > 3 {
		b.reply(ctx, msg, "Usage: <code>/connect email@example.com app-password</code>\nOr: <code>/connect email@example.com app-password imap.server.com:993</code>")
		return
	}
	emailAddr, password := parts[0], parts[1]
	userID := msg.From.ID

	// Delete the message with password immediately
	if err := b.deleteMessage(ctx, msg.Chat.ID, msg.ID); err != nil {
		b.logger.Warn("failed to delete connect message", "error", err)
	}

	existing, err := b.accounts.GetAccountByUserID(ctx, userID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		b.logger.Error("failed to check existing account", "error", err)
		b.reply(ctx, msg, "Failed to check your existing mailbox")
		return
	}
	if existing != nil {
		b.reply(ctx, msg, fmt.Sprintf("Mailbox %s is already connected. Use /disconnect first.", formatter.Escape(existing.Email)))
		return
	}

	var imapServer string
	if len(parts) == 3 {
		imapServer = parts[2]
	} else {
		imapServer, err = b.servers.Resolve(ctx, emailAddr)
		if err != nil {
			b.logger.Warn("failed to resolve IMAP server", "error", err)
			b.reply(ctx, msg, "Could not find the IMAP server for this address. Pass it explicitly: <code>/connect email password imap.server.com:993</code>")
			return
		}
		b.logger.Info("resolved IMAP server", "email", emailAddr, "server", imapServer)
	}

	b.reply(ctx, msg, fmt.Sprintf("Checking login at %s…", formatter.Escape(imapServer)))

	testCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := b.mail.TestConnection(testCtx, emailAddr, password, imapServer); err != nil {
		b.logger.Warn("connection test failed", "user_id", userID, "error", err)
		b.reply(ctx, msg, fmt.Sprintf("Login failed: %s", formatter.Escape(err.Error())))
		return
	}

	encryptedPassword, err := b.secrets.Encrypt(password)
	if err != nil {
		b.logger.Error("failed to encrypt password", "error", err)
		b.reply(ctx, msg, "Failed to store the password securely")
		return
	}

	account := &appmodels.MailAccount{
		UserID:     userID,
		Email:      emailAddr,
		Password:   encryptedPassword,
		IMAPServer: imapServer,
	}
	if err := b.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			b.reply(ctx, msg, "A mailbox is already connected. Use /disconnect first.")
			return
		}
		b.logger.Error("failed to create account", "error", err)
		b.reply(ctx, msg, "Failed to save the mailbox")
		return
	}

	b.logger.Info("mailbox connected", "user_id", userID, "server", imapServer)
	b.reply(ctx, msg, fmt.Sprintf("Mailbox <b>%s</b> connected.\nRun /sync to import your alert emails.", formatter.Escape(emailAddr)))
}

// handleDisconnect handles /disconnect command
func (b *Bot) handleDisconnect(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	account, err := b.accounts.GetAccountByUserID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		b.reply(ctx, msg, "No mailbox is connected")
		return
	}
	if err != nil {
		b.logger.Error("failed to get account", "error", err)
		b.reply(ctx, msg, "Failed to load your mailbox")
		return
	}

	b.mail.Remove(userID)
	if err := b.accounts.DeleteAccountByUserID(ctx, userID); err != nil {
		b.logger.Error("failed to delete account", "error", err)
		b.reply(ctx, msg, "Failed to disconnect the mailbox")
		return
	}

	b.logger.Info("mailbox disconnected", "user_id", userID)
	b.reply(ctx, msg, fmt.Sprintf("Mailbox <b>%s</b> disconnected. Imported transactions are kept.", formatter.Escape(account.Email)))
}

// handleSync handles /sync command
func (b *Bot) handleSync(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil || !b.requireAccount(ctx, msg) {
		return
	}

	jobID, err := b.jobs.StartSync(ctx, msg.From.ID, "")
	b.startedJob(ctx, msg, jobID, err)
}

// handleReprocess handles /reprocess command
// Usage: /reprocess [all]
func (b *Bot) handleReprocess(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	_, args := commandArgs(msg.Text)
	forceAll := strings.EqualFold(args, "all")
	if args != "" && !forceAll {
		b.reply(ctx, msg, "Usage: <code>/reprocess</code> for unparsed emails, <code>/reprocess all</code> for every stored email")
		return
	}

	jobID, err := b.jobs.StartReprocess(ctx, msg.From.ID, forceAll)
	b.startedJob(ctx, msg, jobID, err)
}

func (b *Bot) requireAccount(ctx context.Context, msg *models.Message) bool {
	_, err := b.accounts.GetAccountByUserID(ctx, msg.From.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		b.reply(ctx, msg, "Connect a mailbox first with /connect")
		return false
	case err != nil:
		b.logger.Error("failed to get account", "error", err)
		b.reply(ctx, msg, "Failed to load your mailbox")
		return false
	}
	return true
}

// startedJob reports a freshly submitted job and watches it to completion
func (b *Bot) startedJob(ctx context.Context, msg *models.Message, jobID string, err error) {
	if err != nil {
		b.logger.Error("failed to start job", "user_id", msg.From.ID, "error", err)
		b.reply(ctx, msg, "Failed to start the job, try again later")
		return
	}

	view, err := b.jobs.Status(ctx, jobID)
	if err != nil {
		b.logger.Error("failed to get job status", "job_id", jobID, "error", err)
		b.reply(ctx, msg, fmt.Sprintf("Job <code>%s</code> started", jobID))
	} else {
		b.send(ctx, msg.Chat.ID, b.formatter.FormatJobStatus(view), formatter.BuildJobKeyboard(jobID))
		if view.Status.Terminal() {
			return
		}
	}

	b.watchJob(ctx, msg.Chat.ID, jobID)
}

// watchJob sends the final status of a job once it is terminal
func (b *Bot) watchJob(ctx context.Context, chatID int64, jobID string) {
	b.watchers.Add(1)
	go func() {
		defer b.watchers.Done()

		timer := time.NewTimer(b.notifyWait)
		defer timer.Stop()

		select {
		case <-b.jobs.Done(jobID):
		case <-timer.C:
			b.logger.Info("stopped watching job", "job_id", jobID)
			return
		case <-ctx.Done():
			return
		}

		view, err := b.jobs.Status(ctx, jobID)
		if err != nil {
			b.logger.Error("failed to get job status", "job_id", jobID, "error", err)
			return
		}
		b.send(ctx, chatID, b.formatter.FormatJobStatus(view), nil)
	}()
}

// handleStatus handles /status command
// Usage: /status [job_id]
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	_, jobID := commandArgs(msg.Text)
	if jobID == "" {
		recent, err := b.jobs.ListRecent(ctx, msg.From.ID, 1)
		if err != nil {
			b.logger.Error("failed to list jobs", "error", err)
			b.reply(ctx, msg, "Failed to load jobs")
			return
		}
		if len(recent) == 0 {
			b.reply(ctx, msg, b.formatter.FormatJobList(nil))
			return
		}
		jobID = recent[0].JobID
	}

	view, ok := b.ownJob(ctx, msg.From.ID, jobID)
	if !ok {
		b.reply(ctx, msg, "Job not found")
		return
	}
	var kb *models.InlineKeyboardMarkup
	if !view.Status.Terminal() {
		kb = formatter.BuildJobKeyboard(jobID)
	}
	b.send(ctx, msg.Chat.ID, b.formatter.FormatJobStatus(view), kb)
}

// ownJob loads a job only if it belongs to userID
func (b *Bot) ownJob(ctx context.Context, userID int64, jobID string) (appmodels.JobStatusView, bool) {
	view, err := b.jobs.Status(ctx, jobID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			b.logger.Error("failed to get job status", "job_id", jobID, "error", err)
		}
		return view, false
	}
	return view, view.UserID == userID
}

// handleJobs handles /jobs command
func (b *Bot) handleJobs(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	jobs, err := b.jobs.ListRecent(ctx, msg.From.ID, 10)
	if err != nil {
		b.logger.Error("failed to list jobs", "error", err)
		b.reply(ctx, msg, "Failed to load jobs")
		return
	}
	b.reply(ctx, msg, b.formatter.FormatJobList(jobs))
}

// handleCallback handles inline button callbacks
func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	data, err := formatter.DecodeCallback(callback.Data)
	if err != nil {
		b.logger.Error("failed to decode callback", "error", err, "data", callback.Data)
		b.answerCallback(ctx, callback.ID, "Error", false)
		return
	}

	switch data.Action {
	case formatter.CallbackConfirm:
		b.handleConfirm(ctx, callback, data)
	case formatter.CallbackJobStatus:
		b.handleJobRefresh(ctx, callback, data)
	default:
		b.answerCallback(ctx, callback.ID, "Unknown action", false)
	}
}

// handleJobRefresh updates a status message in place
func (b *Bot) handleJobRefresh(ctx context.Context, callback *models.CallbackQuery, data formatter.CallbackData) {
	view, ok := b.ownJob(ctx, callback.From.ID, data.ID)
	if !ok {
		b.answerCallback(ctx, callback.ID, "Job not found", false)
		return
	}

	if m := callback.Message.Message; m != nil {
		var kb *models.InlineKeyboardMarkup
		if !view.Status.Terminal() {
			kb = formatter.BuildJobKeyboard(view.JobID)
		}
		// Telegram rejects edits that change nothing; that is not a failure here
		if err := b.editMessage(ctx, m.Chat.ID, m.ID, b.formatter.FormatJobStatus(view), kb); err != nil {
			b.logger.Debug("failed to edit status message", "error", err)
		}
	}
	b.answerCallback(ctx, callback.ID, string(view.Status), false)
}
