package cache

import (
	"fmt"
	"time"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

// SetUserField updates one field in memory and marks it dirty. No I/O.
func (c *Cache) SetUserField(id int64, field domain.UserField, value any) error {
	e := c.userEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := applyUserField(&e.val, field, value); err != nil {
		return err
	}
	e.dirty.mark(field)
	return nil
}

// SetGuildField updates one guild field in memory and marks it dirty.
func (c *Cache) SetGuildField(id int64, field domain.GuildField, value any) error {
	e := c.guildEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := applyGuildField(&e.val, field, value); err != nil {
		return err
	}
	e.dirty.mark(field)
	return nil
}

// setUserFields applies several fields as one atomic change.
func (c *Cache) setUserFields(id int64, values map[domain.UserField]any) error {
	e := c.userEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.val
	fields := make([]domain.UserField, 0, len(values))
	for f, v := range values {
		if err := applyUserField(&next, f, v); err != nil {
			return err
		}
		fields = append(fields, f)
	}
	e.val = next
	e.dirty.mark(fields...)
	return nil
}

// SetTimezone stores tz, falling back to UTC when it is not a valid zone.
// It returns the name actually stored.
func (c *Cache) SetTimezone(id int64, tz string) string {
	name := domain.NormalizeTZ(tz)
	_ = c.SetUserField(id, domain.UserTimezone, name)
	return name
}

func (c *Cache) SetBirthday(id int64, birthday time.Time) {
	_ = c.SetUserField(id, domain.UserBirthday, birthday)
}

func (c *Cache) SetBlacklist(id int64, blacklisted bool, reason string) {
	if reason == "" {
		reason = domain.DefaultBlacklistReason
	}
	_ = c.setUserFields(id, map[domain.UserField]any{
		domain.UserBlacklisted:     blacklisted,
		domain.UserBlacklistReason: reason,
	})
}

// SetPrivacy toggles the visibility flag of a private field
// (domain.UserTimezonePrivate or domain.UserBirthdayPrivate).
func (c *Cache) SetPrivacy(id int64, field domain.UserField, private bool) error {
	if field != domain.UserTimezonePrivate && field != domain.UserBirthdayPrivate {
		return fmt.Errorf("%w: %s is not a privacy flag", domain.ErrUnknownField, field)
	}
	return c.SetUserField(id, field, private)
}

func (c *Cache) SetRefreshToken(id int64, token string) {
	_ = c.SetUserField(id, domain.UserRefreshToken, token)
}

func (c *Cache) SetEmbedSize(id int64, size domain.EmbedSize) error {
	return c.SetGuildField(id, domain.GuildEmbedSize, size)
}

func applyUserField(u *domain.UserConfig, field domain.UserField, value any) error {
	typeErr := func() error {
		return fmt.Errorf("%w: %s got %T", domain.ErrFieldType, field, value)
	}
	switch field {
	case domain.UserBlacklisted, domain.UserTimezonePrivate, domain.UserBirthdayPrivate:
		v, ok := value.(bool)
		if !ok {
			return typeErr()
		}
		switch field {
		case domain.UserBlacklisted:
			u.Blacklisted = v
		case domain.UserTimezonePrivate:
			u.TimezonePrivate = v
		default:
			u.BirthdayPrivate = v
		}
	case domain.UserBlacklistReason, domain.UserRefreshToken, domain.UserTimezone:
		v, ok := value.(string)
		if !ok {
			return typeErr()
		}
		switch field {
		case domain.UserBlacklistReason:
			u.BlacklistReason = v
		case domain.UserRefreshToken:
			u.RefreshToken = v
		default:
			u.Timezone = domain.NormalizeTZ(v)
		}
	case domain.UserBirthday, domain.UserCreatedAt:
		v, ok := value.(time.Time)
		if !ok {
			return typeErr()
		}
		if field == domain.UserBirthday {
			y, m, d := v.Date()
			u.Birthday = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		} else {
			u.CreatedAt = v.UTC()
		}
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
	}
	return nil
}

// userFieldValue reads field in the form applyUserField accepts.
func userFieldValue(u domain.UserConfig, field domain.UserField) any {
	switch field {
	case domain.UserBlacklisted:
		return u.Blacklisted
	case domain.UserBlacklistReason:
		return u.BlacklistReason
	case domain.UserTimezone:
		return u.Timezone
	case domain.UserTimezonePrivate:
		return u.TimezonePrivate
	case domain.UserBirthday:
		return u.Birthday
	case domain.UserBirthdayPrivate:
		return u.BirthdayPrivate
	case domain.UserRefreshToken:
		return u.RefreshToken
	case domain.UserCreatedAt:
		return u.CreatedAt
	}
	return nil
}

func guildFieldValue(g domain.GuildConfig, field domain.GuildField) any {
	if field == domain.GuildEmbedSize {
		return g.EmbedSize
	}
	return nil
}

func applyGuildField(g *domain.GuildConfig, field domain.GuildField, value any) error {
	switch field {
	case domain.GuildEmbedSize:
		v, ok := value.(domain.EmbedSize)
		if !ok || !v.Valid() {
			return fmt.Errorf("%w: %s got %v", domain.ErrFieldType, field, value)
		}
		g.EmbedSize = v
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
}
