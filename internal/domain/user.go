package domain

import "time"

// UserField names a persisted column of UserConfig. Values double as column names.
type UserField string

const (
	UserBlacklisted     UserField = "blacklisted"
	UserBlacklistReason UserField = "blacklisted_reason"
	UserTimezone        UserField = "timezone"
	UserTimezonePrivate UserField = "timezone_private"
	UserBirthday        UserField = "birthday"
	UserBirthdayPrivate UserField = "birthday_private"
	UserRefreshToken    UserField = "refresh_token"
	UserCreatedAt       UserField = "created_at"
)

// AllUserFields lists every persisted user field in column order.
var AllUserFields = []UserField{
	UserBlacklisted, UserBlacklistReason,
	UserTimezone, UserTimezonePrivate,
	UserBirthday, UserBirthdayPrivate,
	UserRefreshToken, UserCreatedAt,
}

// DefaultBirthday is the sentinel stored for users who never set a birthday.
var DefaultBirthday = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

const DefaultBlacklistReason = "None"

// UserConfig holds per-user settings.
type UserConfig struct {
	ID              int64
	Blacklisted     bool
	BlacklistReason string
	Timezone        string    // IANA name
	TimezonePrivate bool
	Birthday        time.Time // date only, UTC midnight
	BirthdayPrivate bool
	RefreshToken    string    // linked account; empty when not linked
	CreatedAt       time.Time // UTC
}

// NewUserConfig returns a user with defaults for a previously unknown id.
func NewUserConfig(id int64, now time.Time) UserConfig {
	return UserConfig{
		ID:              id,
		BlacklistReason: DefaultBlacklistReason,
		Timezone:        "UTC",
		Birthday:        DefaultBirthday,
		CreatedAt:       now.UTC(),
	}
}

// Location returns the user's zone, UTC when the stored name is not loadable.
func (u UserConfig) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalTime projects now into the user's zone.
func (u UserConfig) LocalTime(now time.Time) time.Time {
	return now.In(u.Location())
}

// Age is the number of whole years between the birthday and now,
// counted on the user's local calendar.
func (u UserConfig) Age(now time.Time) int {
	local := u.LocalTime(now)
	years := local.Year() - u.Birthday.Year()
	if local.YearDay() < birthdayIn(u.Birthday, local.Year(), local.Location()).YearDay() {
		years--
	}
	return years
}

// NextBirthday returns local midnight of the next birthday strictly after now.
// On the birthday itself the result is one year ahead; see IsBirthday.
func (u UserConfig) NextBirthday(now time.Time) time.Time {
	local := u.LocalTime(now)
	next := birthdayIn(u.Birthday, local.Year(), local.Location())
	if !next.After(local) {
		next = birthdayIn(u.Birthday, local.Year()+1, local.Location())
	}
	return next
}

// IsBirthday reports whether now falls on the birthday in the user's zone.
func (u UserConfig) IsBirthday(now time.Time) bool {
	local := u.LocalTime(now)
	b := birthdayIn(u.Birthday, local.Year(), local.Location())
	return b.Month() == local.Month() && b.Day() == local.Day()
}

// birthdayIn places the birthday's month and day in the given year.
// Feb 29 falls on Feb 28 in common years.
func birthdayIn(b time.Time, year int, loc *time.Location) time.Time {
	day := b.Day()
	if b.Month() == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, b.Month(), day, 0, 0, 0, 0, loc)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
