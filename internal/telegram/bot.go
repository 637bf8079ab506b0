// Package telegram is the chat surface of the service: connecting a mailbox,
// starting syncs, and reading and correcting spend.
package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/expensesync/internal/analytics"
	"github.com/mixelka/expensesync/internal/cards"
	"github.com/mixelka/expensesync/internal/formatter"
	appmodels "github.com/mixelka/expensesync/pkg/models"
)

// AccountStore persists connected mailboxes
type AccountStore interface {
	CreateAccount(ctx context.Context, account *appmodels.MailAccount) error
	GetAccountByUserID(ctx context.Context, userID int64) (*appmodels.MailAccount, error)
	DeleteAccountByUserID(ctx context.Context, userID int64) error
}

// MailConnector verifies logins and drops live sessions
type MailConnector interface {
	TestConnection(ctx context.Context, email, password, server string) error
	Remove(userID int64)
}

// ServerResolver finds the IMAP server of an address
type ServerResolver interface {
	Resolve(ctx context.Context, email string) (string, error)
}

// Encrypter seals passwords before they are stored
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Jobs starts and reports sync jobs
type Jobs interface {
	StartSync(ctx context.Context, userID int64, query string) (string, error)
	StartReprocess(ctx context.Context, userID int64, forceAll bool) (string, error)
	Status(ctx context.Context, jobID string) (appmodels.JobStatusView, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]appmodels.JobStatusView, error)
	Done(jobID string) <-chan struct{}
}

// Analytics serves cached spend aggregates
type Analytics interface {
	Summary(ctx context.Context, userID int64, r appmodels.DateRange) (*analytics.Summary, error)
	TopMerchants(ctx context.Context, userID int64, r appmodels.DateRange, limit int) ([]appmodels.MerchantSpend, error)
	SpendByCard(ctx context.Context, userID int64, r appmodels.DateRange) ([]appmodels.CardSpend, error)
	CardMilestones(ctx context.Context, userID int64) ([]cards.CardProgress, error)
}

// Expenses applies category corrections
type Expenses interface {
	UpdateTransaction(ctx context.Context, userID, id int64, upd appmodels.CategoryUpdate) (*appmodels.Transaction, error)
	Confirm(ctx context.Context, userID, id int64) (*appmodels.Transaction, error)
	CategorizeMerchant(ctx context.Context, userID int64, merchant string, upd appmodels.CategoryUpdate) (int64, error)
	Rules(ctx context.Context, userID int64) ([]*appmodels.MerchantRule, error)
	ReviewQueue(ctx context.Context, userID int64, limit int) ([]*appmodels.Transaction, int, error)
}

// Bot represents the Telegram bot
type Bot struct {
	bot       *bot.Bot
	accounts  AccountStore
	mail      MailConnector
	servers   ServerResolver
	secrets   Encrypter
	jobs      Jobs
	analytics Analytics
	expenses  Expenses
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
	now       func() time.Time

	// notifyWait bounds how long a job is watched for its completion message
	notifyWait time.Duration
	watchers   sync.WaitGroup
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Token      string
	Accounts   AccountStore
	Mail       MailConnector
	Servers    ServerResolver
	Secrets    Encrypter
	Jobs       Jobs
	Analytics  Analytics
	Expenses   Expenses
	Formatter  *formatter.TelegramFormatter
	Logger     *slog.Logger
	NotifyWait time.Duration
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		accounts:   deps.Accounts,
		mail:       deps.Mail,
		servers:    deps.Servers,
		secrets:    deps.Secrets,
		jobs:       deps.Jobs,
		analytics:  deps.Analytics,
		expenses:   deps.Expenses,
		formatter:  deps.Formatter,
		logger:     deps.Logger.With("component", "telegram_bot"),
		now:        time.Now,
		notifyWait: deps.NotifyWait,
	}
	if b.notifyWait <= 0 {
		b.notifyWait = time.Hour
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Token, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	commands := map[string]bot.HandlerFunc{
		"/start":      b.handleStart,
		"/help":       b.handleHelp,
		"/connect":    b.handleConnect,
		"/disconnect": b.handleDisconnect,
		"/sync":       b.handleSync,
		"/reprocess":  b.handleReprocess,
		"/status":     b.handleStatus,
		"/jobs":       b.handleJobs,
		"/spend":      b.handleSpend,
		"/top":        b.handleTop,
		"/cards":      b.handleCards,
		"/rules":      b.handleRules,
		"/rule":       b.handleRule,
		"/recat":      b.handleRecat,
		"/review":     b.handleReview,
	}
	for cmd, h := range commands {
		b.bot.RegisterHandlerMatchFunc(matchCommand(cmd), h)
	}
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, b.handleCallback)
}

// Start runs the bot until ctx is done, then waits for pending completion
// notifications to give up.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot")
	b.bot.Start(ctx)
	b.watchers.Wait()
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
		b.reply(ctx, update.Message, "Unknown command. See /help")
	}
}

// handleStart handles /start command
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleHelp(ctx, tgBot, update)
}

// handleHelp handles /help command
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	text := `<b>Expense Sync</b>

Reads bank and UPI alert emails from your mailbox and turns them into categorized spend.

<b>Mailbox</b>
/connect email password [imap_server] - connect a mailbox (use an app password)
/disconnect - forget the mailbox

<b>Sync</b>
/sync - fetch new alert emails
/reprocess [all] - parse stored emails again
/status [job_id] - progress of a job
/jobs - recent jobs

<b>Spend</b>
/spend [days] - summary, this month by default
/top [days] - top merchants
/cards - card spend and milestones

<b>Categories</b>
/review - transactions needing a look
/recat id category[/subcategory] - fix one transaction
/rule merchant = category[/subcategory] - always categorize a merchant
/rules - list merchant rules

<b>Examples:</b>
<code>/connect me@gmail.com abcd-efgh-ijkl-mnop</code>
<code>/rule swiggy = Food &amp; Dining/Food Delivery</code>`

	b.reply(ctx, update.Message, text)
}
