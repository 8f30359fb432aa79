package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/cache"
	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
	"github.com/aarons-archive/skeleton-clique-bot/internal/scheduler"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
	"github.com/aarons-archive/skeleton-clique-bot/internal/tags"
)

const (
	owner    int64 = 1
	alice    int64 = 10
	bob      int64 = 20
	groupID  int64 = -1001234567
	privChat int64 = 10
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, b.err
}

func (b *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.sent)
	return b.sent[len(b.sent)-1]
}

type harness struct {
	bot    *fakeBot
	cache  *cache.Cache
	sched  *scheduler.Scheduler
	tags   *tags.Manager
	router *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{Dialect: store.DialectSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := cache.New(st, zap.NewNop(), cache.Options{})
	require.NoError(t, c.Load(ctx))

	bot := &fakeBot{}
	sch := scheduler.New(st, c, NewNotifier(bot), zap.NewNop(), scheduler.Options{})
	t.Cleanup(func() { _ = sch.Stop(context.Background()) })

	tm := tags.New(st, c, zap.NewNop(), tags.Options{})
	require.NoError(t, tm.Load(ctx))

	r := NewRouter(bot, zap.NewNop(), Deps{
		Configs:   c,
		Reminders: sch,
		Tags:      tm,
		Owners:    map[int64]bool{owner: true},
	})
	return &harness{bot: bot, cache: c, sched: sch, tags: tm, router: r}
}

func (h *harness) say(from, chatID int64, text string) {
	chatType := "private"
	if chatID < 0 {
		chatType = "supergroup"
	}
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: chatType},
		Text:      text,
	}})
}

func (h *harness) click(from, chatID int64, data string) {
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    data,
	}})
}

func TestStart_RegistersUser(t *testing.T) {
	h := newHarness(t)

	h.say(alice, privChat, "/start")
	_, ok := h.cache.LookupUser(alice)
	assert.True(t, ok)
	assert.Contains(t, h.bot.last(t).Text, "/remind")
}

func TestTimezone(t *testing.T) {
	h := newHarness(t)

	h.say(alice, privChat, "/timezone Europe/Berlin")
	assert.Equal(t, "Europe/Berlin", h.cache.User(alice).Timezone)
	assert.Contains(t, h.bot.last(t).Text, "Timezone updated")

	h.say(alice, privChat, "/timezone Mars/Olympus")
	assert.Contains(t, h.bot.last(t).Text, "Invalid timezone")
	assert.Equal(t, "Europe/Berlin", h.cache.User(alice).Timezone)
}

func TestTimezone_CustomFlow(t *testing.T) {
	h := newHarness(t)

	h.click(alice, privChat, "tz:custom")
	h.say(alice, privChat, "Asia/Tokyo")
	assert.Equal(t, "Asia/Tokyo", h.cache.User(alice).Timezone)

	// The pending state is consumed.
	h.say(alice, privChat, "Europe/Paris")
	assert.Equal(t, "Asia/Tokyo", h.cache.User(alice).Timezone)
}

func TestBirthdayAndPrivacy(t *testing.T) {
	h := newHarness(t)

	h.say(alice, privChat, "/birthday 1990-03-15")
	assert.Equal(t, time.Date(1990, time.March, 15, 0, 0, 0, 0, time.UTC), h.cache.User(alice).Birthday)

	h.say(alice, privChat, "/birthday 3000-01-01")
	assert.Contains(t, h.bot.last(t).Text, "Invalid date")

	h.say(alice, privChat, "/private birthday on")
	assert.True(t, h.cache.User(alice).BirthdayPrivate)

	// Bob replies to Alice and asks for her profile.
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From:           &tgbotapi.User{ID: bob},
		Chat:           &tgbotapi.Chat{ID: groupID, Type: "supergroup"},
		Text:           "/profile",
		ReplyToMessage: &tgbotapi.Message{From: &tgbotapi.User{ID: alice}},
	}})
	text := h.bot.last(t).Text
	assert.Contains(t, text, "Birthday: hidden")
	assert.NotContains(t, text, "March 15")
}

func TestRemind_SchedulesListsAndCancels(t *testing.T) {
	h := newHarness(t)

	h.say(alice, groupID, "/remind 2h stretch | every day")
	assert.Contains(t, h.bot.last(t).Text, "repeating every day")

	list := h.sched.ListByOwner(alice)
	require.Len(t, list, 1)
	rem := list[0]
	assert.Equal(t, "stretch", rem.Content)
	assert.Equal(t, groupID, rem.ChannelID)
	assert.Equal(t, "https://t.me/c/1234567/7", rem.MessageLink)
	assert.Equal(t, domain.RepeatEveryDay, rem.Repeat)

	h.say(alice, privChat, "/reminders")
	assert.Contains(t, h.bot.last(t).Text, "stretch")

	// Bob cannot cancel Alice's reminder.
	h.say(bob, groupID, "/cancel "+itoa(rem.ID))
	assert.Contains(t, h.bot.last(t).Text, "No pending reminder")
	assert.Len(t, h.sched.ListByOwner(alice), 1)

	h.click(alice, privChat, "cancel:"+itoa(rem.ID))
	assert.Contains(t, h.bot.last(t).Text, "cancelled")
	assert.Empty(t, h.sched.ListByOwner(alice))
}

func TestRemind_BadInput(t *testing.T) {
	h := newHarness(t)

	h.say(alice, privChat, "/remind")
	assert.Contains(t, h.bot.last(t).Text, "Usage")

	h.say(alice, privChat, "/remind whenever tea")
	assert.Contains(t, h.bot.last(t).Text, "Could not read that")
	assert.Empty(t, h.sched.ListByOwner(alice))
}

func TestBlacklist(t *testing.T) {
	h := newHarness(t)

	h.say(bob, privChat, "/blacklist 10 spam")
	assert.Contains(t, h.bot.last(t).Text, "Only bot owners")
	assert.False(t, h.cache.User(alice).Blacklisted)

	h.say(owner, privChat, "/blacklist 10 spam")
	u := h.cache.User(alice)
	assert.True(t, u.Blacklisted)
	assert.Equal(t, "spam", u.BlacklistReason)

	h.say(alice, privChat, "/remind 5m tea")
	assert.Contains(t, h.bot.last(t).Text, "blacklisted")
	assert.Empty(t, h.sched.ListByOwner(alice))

	h.say(alice, privChat, "/start")
	assert.Contains(t, h.bot.last(t).Text, "/remind")

	h.say(owner, privChat, "/unblacklist 10")
	assert.False(t, h.cache.User(alice).Blacklisted)
}

func TestTag_CreateShowAliasAndDelete(t *testing.T) {
	h := newHarness(t)

	h.say(alice, groupID, "/tag create rules 1. be nice\n2. no spam")
	assert.Contains(t, h.bot.last(t).Text, `Tag "rules" created`)

	h.say(bob, groupID, "/tag Rules")
	assert.Equal(t, "1. be nice\n2. no spam", h.bot.last(t).Text)

	h.say(bob, groupID, "/tag alias r rules")
	assert.Contains(t, h.bot.last(t).Text, `points at "rules"`)
	h.say(alice, groupID, "/tag r")
	assert.Equal(t, "1. be nice\n2. no spam", h.bot.last(t).Text)

	h.say(bob, groupID, "/tag delete rules")
	assert.Contains(t, h.bot.last(t).Text, "belongs to someone else")

	h.say(alice, groupID, "/tag delete rules")
	assert.Contains(t, h.bot.last(t).Text, "1 aliases went with it")
	h.say(bob, groupID, "/tag r")
	assert.Contains(t, h.bot.last(t).Text, "No tag with that name")
}

func TestTag_EditAndErrors(t *testing.T) {
	h := newHarness(t)

	h.say(alice, privChat, "/tag")
	assert.Contains(t, h.bot.last(t).Text, "Usage: /tag")

	h.say(alice, privChat, "/tag create list nope")
	assert.Contains(t, h.bot.last(t).Text, "Tag names are")

	h.say(alice, privChat, "/tag create faq")
	assert.Contains(t, h.bot.last(t).Text, "Tag content must be")

	h.say(alice, privChat, "/tag create faq read the rules")
	h.say(bob, privChat, "/tag create faq mine")
	assert.Contains(t, h.bot.last(t).Text, "already exists")

	h.say(alice, privChat, "/tag alias f faq")
	h.say(alice, privChat, "/tag edit f changed")
	assert.Contains(t, h.bot.last(t).Text, "is an alias")

	h.say(alice, privChat, "/tag edit faq see pinned message")
	assert.Contains(t, h.bot.last(t).Text, `Tag "faq" updated`)
	got, ok := h.tags.Get("f")
	require.True(t, ok)
	assert.Equal(t, "see pinned message", got.Content)
}

func TestTags_ListsOwnTags(t *testing.T) {
	h := newHarness(t)

	h.say(alice, privChat, "/tags")
	assert.Equal(t, tagsEmpty, h.bot.last(t).Text)

	h.say(alice, privChat, "/tag create rules be nice")
	h.say(alice, privChat, "/tag alias r rules")
	h.say(bob, privChat, "/tag create bobs mine")

	h.say(alice, privChat, "/tags")
	text := h.bot.last(t).Text
	assert.Contains(t, text, "• r → rules")
	assert.Contains(t, text, "• rules")
	assert.NotContains(t, text, "bobs")
}

func TestEmbedSize(t *testing.T) {
	h := newHarness(t)

	h.say(alice, privChat, "/embedsize large")
	assert.Contains(t, h.bot.last(t).Text, "only works in groups")

	h.say(alice, groupID, "/embedsize medium")
	assert.Equal(t, domain.EmbedMedium, h.cache.Guild(groupID).EmbedSize)
}

func TestNotifier_WrapsSendFailure(t *testing.T) {
	bot := &fakeBot{err: errors.New("Forbidden: bot was blocked by the user")}
	err := NewNotifier(bot).Deliver(context.Background(), domain.Reminder{ID: 1, ChannelID: 5, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrDelivery)
}
