package store

import (
	"fmt"
	"time"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// Reminder instants keep millisecond precision so a reloaded timer fires
// when the armed one would have.
func toUnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromUnixMilli(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func formatBirthday(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func parseBirthday(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return domain.DefaultBirthday
	}
	return t
}

// userColumn maps a field to the value bound for its column.
func (s *SQLStore) userColumn(u domain.UserConfig, f domain.UserField) (any, error) {
	switch f {
	case domain.UserBlacklisted:
		return u.Blacklisted, nil
	case domain.UserBlacklistReason:
		return u.BlacklistReason, nil
	case domain.UserTimezone:
		return u.Timezone, nil
	case domain.UserTimezonePrivate:
		return u.TimezonePrivate, nil
	case domain.UserBirthday:
		return formatBirthday(u.Birthday), nil
	case domain.UserBirthdayPrivate:
		return u.BirthdayPrivate, nil
	case domain.UserRefreshToken:
		enc, err := s.enc.EncryptString(u.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
		return enc, nil
	case domain.UserCreatedAt:
		return toUnix(u.CreatedAt), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownField, f)
}

func guildColumn(g domain.GuildConfig, f domain.GuildField) (any, error) {
	switch f {
	case domain.GuildEmbedSize:
		return int(g.EmbedSize), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownField, f)
}
