package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

// Sender is the part of *tgbotapi.BotAPI the adapter uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Configs is the config cache as seen by command handlers.
type Configs interface {
	User(id int64) domain.UserConfig
	LookupUser(id int64) (domain.UserConfig, bool)
	Guild(id int64) domain.GuildConfig
	SetTimezone(id int64, tz string) string
	SetBirthday(id int64, birthday time.Time)
	SetPrivacy(id int64, field domain.UserField, private bool) error
	SetBlacklist(id int64, blacklisted bool, reason string)
	SetEmbedSize(id int64, size domain.EmbedSize) error
}

// Reminders is the scheduler as seen by command handlers.
type Reminders interface {
	Schedule(ctx context.Context, d domain.Draft) (domain.Reminder, error)
	CancelOwned(ctx context.Context, ownerID, id int64) (bool, error)
	ListByOwner(ownerID int64) []domain.Reminder
}

// Tags is the tag manager as seen by command handlers.
type Tags interface {
	Get(name string) (domain.Tag, bool)
	Create(ctx context.Context, ownerID int64, name, content string) (domain.Tag, error)
	CreateAlias(ctx context.Context, ownerID int64, name, target string) (domain.Tag, error)
	Edit(ctx context.Context, ownerID int64, name, content string) (domain.Tag, error)
	Delete(ctx context.Context, ownerID int64, name string) (int, error)
	ListByOwner(ownerID int64) []domain.Tag
}

// Deps is everything handlers touch. It replaces any process-wide state.
type Deps struct {
	Configs   Configs
	Reminders Reminders
	Tags      Tags
	Owners    map[int64]bool // may run /blacklist and /unblacklist
	Now       func() time.Time
}

// Pending state keys used in conversational flows.
const (
	pendingTZ       = "await_tz_text"
	pendingBirthday = "await_birthday_text"
)

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot   Sender
	log   *zap.Logger
	deps  Deps
	state map[int64]string // userID -> pending state
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Sender, log *zap.Logger, deps Deps) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Router{
		bot:   bot,
		log:   log.Named("telegram"),
		deps:  deps,
		state: make(map[int64]string),
	}
}

func (r *Router) setPending(userID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[userID] = s
}

func (r *Router) takePending(userID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state[userID]
	delete(r.state, userID)
	return s
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.From != nil {
		r.handleMessage(ctx, upd.Message)
		return
	}
	if upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil {
		r.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	name, args := splitCommand(msg.Text)

	if name != "start" {
		if u, ok := r.deps.Configs.LookupUser(userID); ok && u.Blacklisted {
			r.sendText(chatID, fmt.Sprintf(blacklistedFmt, u.BlacklistReason))
			return
		}
	}

	switch name {
	case "start":
		r.handleStart(chatID, userID)
	case "profile":
		r.handleProfile(msg)
	case "timezone":
		r.handleTimezone(chatID, userID, args)
	case "birthday":
		r.handleBirthday(chatID, userID, args)
	case "private":
		r.handlePrivate(chatID, userID, args)
	case "remind":
		r.handleRemind(ctx, msg, args)
	case "reminders":
		r.handleReminders(chatID, userID)
	case "cancel":
		r.handleCancel(ctx, chatID, userID, args)
	case "tag":
		r.handleTag(ctx, chatID, userID, args)
	case "tags":
		r.handleTags(chatID, userID)
	case "embedsize":
		r.handleEmbedSize(msg, args)
	case "blacklist":
		r.handleBlacklist(chatID, userID, args, true)
	case "unblacklist":
		r.handleBlacklist(chatID, userID, args, false)
	case "":
		r.handleFreeForm(chatID, userID, strings.TrimSpace(msg.Text))
	default:
		// Unknown command: ignore
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	data := cb.Data

	if u, ok := r.deps.Configs.LookupUser(userID); ok && u.Blacklisted {
		_ = r.answerCallback(cb.ID, "blacklisted")
		return
	}

	switch {
	case data == "tz:custom":
		_ = r.answerCallback(cb.ID, "")
		r.sendText(chatID, "Enter timezone (e.g., Europe/Berlin):")
		r.setPending(userID, pendingTZ)
	case strings.HasPrefix(data, "tz:"):
		_ = r.answerCallback(cb.ID, "")
		r.handleTimezone(chatID, userID, strings.TrimPrefix(data, "tz:"))
	case strings.HasPrefix(data, "cancel:"):
		_ = r.answerCallback(cb.ID, "")
		r.handleCancel(ctx, chatID, userID, strings.TrimPrefix(data, "cancel:"))
	default:
		// Unknown callback, ignore silently
		_ = r.answerCallback(cb.ID, "")
	}
}

func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}
