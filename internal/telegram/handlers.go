package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

const birthdayLayout = "January 2"

// --- Core commands ---

func (r *Router) handleStart(chatID, userID int64) {
	r.deps.Configs.User(userID) // registers defaults for a new user
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// handleProfile shows the sender's profile, or the profile of the author of
// the replied-to message with private fields hidden.
func (r *Router) handleProfile(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	targetID := msg.From.ID
	self := true
	if rep := msg.ReplyToMessage; rep != nil && rep.From != nil && rep.From.ID != msg.From.ID {
		targetID, self = rep.From.ID, false
	}

	var u domain.UserConfig
	if self {
		u = r.deps.Configs.User(targetID)
	} else {
		var ok bool
		if u, ok = r.deps.Configs.LookupUser(targetID); !ok {
			r.sendText(chatID, "That user has no profile yet.")
			return
		}
	}

	now := r.deps.Now()
	tz, local := hiddenText, hiddenText
	if self || !u.TimezonePrivate {
		tz = u.Timezone
		local, _ = domain.LocalizeTime(now, u.Timezone)
	}

	birthday, age, next := notSetText, notSetText, notSetText
	switch {
	case !self && u.BirthdayPrivate:
		birthday, age, next = hiddenText, hiddenText, hiddenText
	case !u.Birthday.Equal(domain.DefaultBirthday):
		birthday = u.Birthday.Format(birthdayLayout)
		age = strconv.Itoa(u.Age(now))
		if u.IsBirthday(now) {
			next = birthdayToday
		} else {
			next = u.NextBirthday(now).In(u.Location()).Format("Mon Jan 2 2006")
		}
	}

	body := fmt.Sprintf("%s\n\n"+profileFmt,
		profileTitle,
		tz, local,
		birthday, age, next,
		len(r.deps.Reminders.ListByOwner(targetID)),
	)
	out := tgbotapi.NewMessage(chatID, body)
	if self {
		out.ReplyMarkup = mainMenuKeyboard()
	}
	if _, err := r.bot.Send(out); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// --- Profile settings ---

func (r *Router) handleTimezone(chatID, userID int64, args string) {
	if args == "" {
		msg := tgbotapi.NewMessage(chatID, "Choose a timezone or enter your own (Region/City):")
		msg.ReplyMarkup = tzPresetsKeyboard()
		_, _ = r.bot.Send(msg)
		return
	}
	tz, err := domain.ValidateTZ(args)
	if err != nil {
		r.sendText(chatID, "Invalid timezone. Example: Europe/Berlin")
		return
	}
	r.sendText(chatID, "Timezone updated: "+r.deps.Configs.SetTimezone(userID, tz))
}

func (r *Router) handleBirthday(chatID, userID int64, args string) {
	if args == "" {
		r.sendText(chatID, "Enter your birthday as YYYY-MM-DD (e.g., 1990-03-15):")
		r.setPending(userID, pendingBirthday)
		return
	}
	b, err := domain.ParseBirthday(args)
	if err != nil || b.After(r.deps.Now()) {
		r.sendText(chatID, "Invalid date. Example: 1990-03-15")
		return
	}
	r.deps.Configs.SetBirthday(userID, b)
	r.sendText(chatID, "Birthday updated: "+b.Format(birthdayLayout))
}

func (r *Router) handlePrivate(chatID, userID int64, args string) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		r.sendText(chatID, privateUsage)
		return
	}
	var field domain.UserField
	switch strings.ToLower(parts[0]) {
	case "timezone", "tz":
		field = domain.UserTimezonePrivate
	case "birthday":
		field = domain.UserBirthdayPrivate
	default:
		r.sendText(chatID, privateUsage)
		return
	}
	on, err := parseToggle(parts[1])
	if err != nil {
		r.sendText(chatID, privateUsage)
		return
	}
	if err := r.deps.Configs.SetPrivacy(userID, field, on); err != nil {
		r.log.Error("set privacy failed", zap.Int64("userID", userID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	state := "public"
	if on {
		state = "private"
	}
	r.sendText(chatID, fmt.Sprintf("Your %s is now %s.", strings.ToLower(parts[0]), state))
}

// --- Reminders ---

func (r *Router) handleRemind(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	if args == "" {
		r.sendText(chatID, remindUsage)
		return
	}
	req, err := parseRemind(args)
	if err != nil {
		r.sendText(chatID, "Could not read that: "+err.Error()+"\n\n"+remindUsage)
		return
	}

	rem, err := r.deps.Reminders.Schedule(ctx, domain.Draft{
		OwnerID:     msg.From.ID,
		ChannelID:   chatID,
		FireAt:      r.deps.Now().Add(req.Delay),
		Content:     req.Content,
		MessageID:   int64(msg.MessageID),
		MessageLink: messageLink(msg.Chat, msg.MessageID),
		Repeat:      req.Repeat,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidSchedule):
		r.sendText(chatID, "That time is not in the future.")
		return
	case err != nil:
		r.log.Error("schedule failed", zap.Int64("userID", msg.From.ID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}

	when, _ := domain.LocalizeTime(rem.FireAt, r.deps.Configs.User(msg.From.ID).Timezone)
	text := fmt.Sprintf("⏰ Reminder #%d set for %s", rem.ID, when)
	if rem.Repeat.Recurring() {
		text += ", repeating " + rem.Repeat.String()
	}
	r.sendText(chatID, text+".")
}

func (r *Router) handleReminders(chatID, userID int64) {
	list := r.deps.Reminders.ListByOwner(userID)
	if len(list) == 0 {
		r.sendText(chatID, remindersEmpty)
		return
	}

	tz := r.deps.Configs.User(userID).Timezone
	var b strings.Builder
	b.WriteString(remindersTitle + "\n\n")
	ids := make([]int64, 0, len(list))
	for _, rem := range list {
		when, _ := domain.LocalizeTime(rem.FireAt, tz)
		fmt.Fprintf(&b, reminderLine, rem.ID, when, rem.Repeat, rem.Content)
		ids = append(ids, rem.ID)
	}

	msg := tgbotapi.NewMessage(chatID, b.String())
	msg.ReplyMarkup = remindersKeyboard(ids)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) handleCancel(ctx context.Context, chatID, userID int64, args string) {
	id, err := parseID(args)
	if err != nil {
		r.sendText(chatID, cancelUsage)
		return
	}
	ok, err := r.deps.Reminders.CancelOwned(ctx, userID, id)
	if err != nil {
		r.log.Error("cancel failed", zap.Int64("reminderID", id), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	if !ok {
		r.sendText(chatID, fmt.Sprintf("No pending reminder #%d.", id))
		return
	}
	r.sendText(chatID, fmt.Sprintf("Reminder #%d cancelled.", id))
}

// --- Tags ---

func (r *Router) handleTag(ctx context.Context, chatID, userID int64, args string) {
	sub, rest := cutWord(args)
	if sub == "" {
		r.sendText(chatID, tagUsage)
		return
	}
	name, body := cutWord(rest)

	var (
		reply string
		err   error
	)
	switch strings.ToLower(sub) {
	case "create":
		var t domain.Tag
		if t, err = r.deps.Tags.Create(ctx, userID, name, body); err == nil {
			reply = fmt.Sprintf("Tag %q created.", t.Name)
		}
	case "alias":
		var t domain.Tag
		if t, err = r.deps.Tags.CreateAlias(ctx, userID, name, body); err == nil {
			reply = fmt.Sprintf("Tag %q now points at %q.", t.Name, t.Alias)
		}
	case "edit":
		var t domain.Tag
		if t, err = r.deps.Tags.Edit(ctx, userID, name, body); err == nil {
			reply = fmt.Sprintf("Tag %q updated.", t.Name)
		}
	case "delete":
		var n int
		if n, err = r.deps.Tags.Delete(ctx, userID, name); err == nil {
			reply = fmt.Sprintf("Tag %q deleted.", strings.ToLower(name))
			if n > 1 {
				reply += fmt.Sprintf(" %d aliases went with it.", n-1)
			}
		}
	default:
		t, ok := r.deps.Tags.Get(args)
		if !ok {
			r.sendText(chatID, "No tag with that name.")
			return
		}
		r.sendText(chatID, t.Content)
		return
	}

	if err != nil {
		r.sendText(chatID, r.tagError(userID, err))
		return
	}
	r.sendText(chatID, reply)
}

// tagError turns a tag manager error into a reply.
func (r *Router) tagError(userID int64, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTagName):
		return fmt.Sprintf("Tag names are 1 to %d characters, one word, and not a subcommand.\n\n%s",
			domain.MaxTagNameLen, tagUsage)
	case errors.Is(err, domain.ErrInvalidTag):
		return fmt.Sprintf("Tag content must be 1 to %d characters.\n\n%s", domain.MaxTagContentLen, tagUsage)
	case errors.Is(err, domain.ErrTagExists):
		return "A tag with that name already exists."
	case errors.Is(err, domain.ErrNotFound):
		return "No tag with that name."
	case errors.Is(err, domain.ErrNotTagOwner):
		return "That tag belongs to someone else."
	case errors.Is(err, domain.ErrTagIsAlias):
		return "That tag is an alias. Edit the tag it points at instead."
	default:
		r.log.Error("tag command failed", zap.Int64("userID", userID), zap.Error(err))
		return genericError
	}
}

func (r *Router) handleTags(chatID, userID int64) {
	list := r.deps.Tags.ListByOwner(userID)
	if len(list) == 0 {
		r.sendText(chatID, tagsEmpty)
		return
	}
	var b strings.Builder
	b.WriteString(tagsTitle + "\n")
	for _, t := range list {
		b.WriteString("\n• " + t.Name)
		if t.IsAlias() {
			b.WriteString(" → " + t.Alias)
		}
	}
	r.sendText(chatID, b.String())
}

// --- Group and owner commands ---

func (r *Router) handleEmbedSize(msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		r.sendText(chatID, "This command only works in groups.")
		return
	}
	if args == "" {
		r.sendText(chatID, "Embed size: "+r.deps.Configs.Guild(chatID).EmbedSize.String()+"\n"+embedUsage)
		return
	}
	size, err := domain.ParseEmbedSize(args)
	if err != nil {
		r.sendText(chatID, embedUsage)
		return
	}
	if err := r.deps.Configs.SetEmbedSize(chatID, size); err != nil {
		r.log.Error("set embed size failed", zap.Int64("chatID", chatID), zap.Error(err))
		r.sendText(chatID, genericError)
		return
	}
	r.sendText(chatID, "Embed size updated: "+size.String())
}

func (r *Router) handleBlacklist(chatID, userID int64, args string, on bool) {
	if !r.deps.Owners[userID] {
		r.sendText(chatID, "Only bot owners can do that.")
		return
	}
	idPart, reason, _ := strings.Cut(args, " ")
	target, err := parseID(idPart)
	if err != nil {
		r.sendText(chatID, blacklistHelp)
		return
	}
	if !on {
		reason = ""
	}
	r.deps.Configs.SetBlacklist(target, on, strings.TrimSpace(reason))
	r.log.Info("blacklist changed",
		zap.Int64("by", userID),
		zap.Int64("target", target),
		zap.Bool("blacklisted", on))

	if on {
		r.sendText(chatID, fmt.Sprintf("User %d is now blacklisted.", target))
		return
	}
	r.sendText(chatID, fmt.Sprintf("User %d is no longer blacklisted.", target))
}

// --- Free-form dispatcher (for conversational inputs) ---

func (r *Router) handleFreeForm(chatID, userID int64, text string) {
	if text == "" {
		return
	}
	switch r.takePending(userID) {
	case pendingTZ:
		r.handleTimezone(chatID, userID, text)
	case pendingBirthday:
		r.handleBirthday(chatID, userID, text)
	default:
		// No pending flow: ignore free-form message
	}
}
