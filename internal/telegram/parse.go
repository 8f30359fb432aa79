package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

var errEmptyReminder = errors.New("reminder text is empty")

// splitCommand splits "/cmd@bot a b" into "cmd" and "a b".
// Text that is not a command yields an empty name.
func splitCommand(text string) (name, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// cutWord splits s at its first run of whitespace. The remainder keeps
// inner newlines so multi-line tag content survives.
func cutWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

type remindRequest struct {
	Delay   time.Duration
	Content string
	Repeat  domain.Repeat
}

// parseRemind parses "<delay> <text> [| repeat]".
func parseRemind(args string) (remindRequest, error) {
	var req remindRequest

	body, repeat, hasRepeat := strings.Cut(args, "|")
	delay, content, _ := strings.Cut(strings.TrimSpace(body), " ")

	d, err := domain.ParseDelay(delay)
	if err != nil {
		return req, err
	}
	req.Delay = d
	req.Content = strings.TrimSpace(content)
	if req.Content == "" {
		return req, errEmptyReminder
	}
	if hasRepeat {
		rp, err := domain.ParseRepeat(repeat)
		if err != nil {
			return req, err
		}
		req.Repeat = rp
	}
	return req, nil
}

// parseToggle accepts on/off and common synonyms.
func parseToggle(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// messageLink links back to a message. Private chats have no public link.
func messageLink(chat *tgbotapi.Chat, messageID int) string {
	if chat == nil || chat.IsPrivate() {
		return ""
	}
	if chat.UserName != "" {
		return fmt.Sprintf("https://t.me/%s/%d", chat.UserName, messageID)
	}
	// Supergroup ids are -100<internal id>.
	internal := strings.TrimPrefix(strconv.FormatInt(chat.ID, 10), "-100")
	if internal == strconv.FormatInt(chat.ID, 10) {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, messageID)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
