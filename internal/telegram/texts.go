package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UI texts in English
const (
	startText = "👋 I keep your profile and remind you of things.\n\n" +
		"• /timezone Europe/Berlin: set your time zone\n" +
		"• /birthday 1990-03-15: set your birthday\n" +
		"• /remind 2h stretch | every day: schedule a reminder\n" +
		"• /reminders: list and cancel reminders\n" +
		"• /tag rules: show a saved tag, /tag create rules be nice: save one\n" +
		"• /profile: show your profile"
	profileTitle   = "🧾 Profile"
	profileFmt     = "• Time zone: %s\n• Local time: %s\n• Birthday: %s\n• Age: %s\n• Next birthday: %s\n• Reminders: %d\n"
	hiddenText     = "hidden"
	notSetText     = "not set"
	birthdayToday  = "🎂 today!"
	remindersEmpty = "You have no pending reminders."
	remindersTitle = "⏰ Your reminders:"
	reminderLine   = "#%d · %s · %s\n%s\n"
	deliveryFmt    = "⏰ Reminder #%d\n\n%s"
	blacklistedFmt = "You are blacklisted from using this bot. Reason: %s"

	remindUsage   = "Usage: /remind <delay> <text> [| repeat]\nExamples: /remind 30m tea, /remind 1d standup | every day"
	privateUsage  = "Usage: /private <timezone|birthday> <on|off>"
	cancelUsage   = "Usage: /cancel <reminder id>"
	tagUsage = "Usage: /tag <name>\n" +
		"/tag create <name> <content>\n" +
		"/tag alias <alias> <target>\n" +
		"/tag edit <name> <content>\n" +
		"/tag delete <name>"
	tagsEmpty     = "You have no tags."
	tagsTitle     = "🏷 Your tags:"
	embedUsage    = "Usage: /embedsize <large|medium|small>"
	blacklistHelp = "Usage: /blacklist <user id> [reason] or /unblacklist <user id>"

	genericError = "Something went wrong. Please try again later."
)

// mainMenuKeyboard builds the reply keyboard shown under /start and /profile.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/profile"),
			tgbotapi.NewKeyboardButton("/reminders"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/timezone"),
			tgbotapi.NewKeyboardButton("/birthday"),
		),
	)
}

func tzPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Europe/London", "tz:Europe/London"),
			tgbotapi.NewInlineKeyboardButtonData("Europe/Berlin", "tz:Europe/Berlin"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("America/New_York", "tz:America/New_York"),
			tgbotapi.NewInlineKeyboardButtonData("UTC", "tz:UTC"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "tz:custom"),
		),
	)
}

// remindersKeyboard offers one cancel button per reminder.
func remindersKeyboard(ids []int64) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel #"+itoa(id), "cancel:"+itoa(id)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
