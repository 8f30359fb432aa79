package store

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarons-archive/skeleton-clique-bot/internal/crypto"
	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

func openTestStore(t *testing.T, enc crypto.Encryptor) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Options{Dialect: DialectSQLite, DSN: ":memory:", Encryptor: enc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertUserFields_FullInsertThenLoad(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	u := domain.NewUserConfig(7, time.Unix(1700000000, 0))
	u.Timezone = "Europe/Moscow"
	u.Birthday = time.Date(1990, time.March, 3, 0, 0, 0, 0, time.UTC)
	u.RefreshToken = "tok"
	require.NoError(t, s.UpsertUserFields(ctx, u, domain.AllUserFields))

	users, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, u, users[0])
}

func TestUpsertUserFields_PartialUpdateKeepsOtherColumns(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	u := domain.NewUserConfig(7, time.Unix(1700000000, 0))
	u.Timezone = "Asia/Almaty"
	require.NoError(t, s.UpsertUserFields(ctx, u, domain.AllUserFields))

	// A stale snapshot must not overwrite columns it was not asked to write.
	stale := u
	stale.Timezone = "UTC"
	stale.Blacklisted = true
	stale.BlacklistReason = "spam"
	require.NoError(t, s.UpsertUserFields(ctx, stale, []domain.UserField{domain.UserBlacklisted, domain.UserBlacklistReason}))

	users, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Asia/Almaty", users[0].Timezone)
	assert.True(t, users[0].Blacklisted)
	assert.Equal(t, "spam", users[0].BlacklistReason)
}

func TestUpsertUserFields_PartialInsertUsesDefaults(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	u := domain.UserConfig{ID: 9, Timezone: "Europe/Tallinn"}
	require.NoError(t, s.UpsertUserFields(ctx, u, []domain.UserField{domain.UserTimezone}))

	users, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Europe/Tallinn", users[0].Timezone)
	assert.Equal(t, domain.DefaultBirthday, users[0].Birthday)
	assert.Equal(t, domain.DefaultBlacklistReason, users[0].BlacklistReason)
	assert.False(t, users[0].CreatedAt.IsZero())
}

func TestLoadUsers_InvalidStoredZoneFallsBackToUTC(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, `INSERT INTO users (id, timezone) VALUES (1, 'Not/AZone')`)
	require.NoError(t, err)

	users, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "UTC", users[0].Timezone)
}

func TestRefreshTokenEncryptedAtRest(t *testing.T) {
	enc, err := crypto.NewAESEncryptor(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32))))
	require.NoError(t, err)
	s := openTestStore(t, enc)
	ctx := context.Background()

	u := domain.NewUserConfig(3, time.Now())
	u.RefreshToken = "super-secret"
	require.NoError(t, s.UpsertUserFields(ctx, u, []domain.UserField{domain.UserRefreshToken}))

	var raw string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT refresh_token FROM users WHERE id = 3`).Scan(&raw))
	assert.NotEqual(t, "super-secret", raw)

	users, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "super-secret", users[0].RefreshToken)
}

func TestGuildUpsertAndLoad(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.UpsertGuildFields(ctx, domain.GuildConfig{ID: 5, EmbedSize: domain.EmbedLarge}, domain.AllGuildFields))
	require.NoError(t, s.UpsertGuildFields(ctx, domain.GuildConfig{ID: 5, EmbedSize: domain.EmbedMedium}, domain.AllGuildFields))

	guilds, err := s.LoadGuilds(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.GuildConfig{{ID: 5, EmbedSize: domain.EmbedMedium}}, guilds)
}

func TestReminderLifecycle(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, s.UpsertUserFields(ctx, domain.NewUserConfig(1, time.Now()), domain.AllUserFields))

	r := domain.Reminder{
		OwnerID:     1,
		ChannelID:   100,
		CreatedAt:   time.Unix(1700000000, 0).UTC(),
		FireAt:      time.Unix(1700003600, 0).UTC(),
		Content:     "drink water",
		MessageID:   55,
		MessageLink: "https://t.me/c/100/55",
		Repeat:      domain.RepeatEveryDay,
	}
	id, err := s.InsertReminder(ctx, r)
	require.NoError(t, err)
	require.NotZero(t, id)
	r.ID = id

	list, err := s.ListReminders(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Reminder{r}, list)

	r.FireAt = r.FireAt.Add(24 * time.Hour)
	r.Content = "drink more water"
	require.NoError(t, s.UpdateReminder(ctx, r))
	list, err = s.ListReminders(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Reminder{r}, list)

	ok, err := s.DeleteReminder(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.DeleteReminder(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	err = s.UpdateReminder(ctx, r)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.True(t, IsNotFound(err))
}

func TestReminder_SubSecondFireTimeSurvivesReload(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, s.UpsertUserFields(ctx, domain.NewUserConfig(1, time.Now()), domain.AllUserFields))

	at := time.Date(2030, time.May, 4, 9, 30, 15, 750*int(time.Millisecond), time.UTC)
	_, err := s.InsertReminder(ctx, domain.Reminder{OwnerID: 1, CreatedAt: at, FireAt: at, Content: "x"})
	require.NoError(t, err)

	list, err := s.ListReminders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].FireAt.Equal(at), "got %s", list[0].FireAt)
}

func TestInsertReminder_UnknownOwnerRejected(t *testing.T) {
	s := openTestStore(t, nil)
	_, err := s.InsertReminder(context.Background(), domain.Reminder{OwnerID: 404, FireAt: time.Now(), Content: "x"})
	require.Error(t, err)
}

func TestOpen_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "bot.db")

	s, err := Open(ctx, Options{Dialect: DialectSQLite, DSN: path})
	require.NoError(t, err)
	require.NoError(t, s.UpsertGuildFields(ctx, domain.NewGuildConfig(8), domain.AllGuildFields))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Dialect: DialectSQLite, DSN: path})
	require.NoError(t, err)
	defer s.Close()
	guilds, err := s.LoadGuilds(ctx)
	require.NoError(t, err)
	require.Len(t, guilds, 1)
	require.Equal(t, domain.EmbedSmall, guilds[0].EmbedSize)
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Options{Dialect: "oracle"})
	require.Error(t, err)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("postgres")
	require.NoError(t, err)
	require.Equal(t, DialectPostgres, d)

	d, err = ParseDialect("SQLite")
	require.NoError(t, err)
	require.Equal(t, DialectSQLite, d)

	_, err = ParseDialect("mysql")
	require.Error(t, err)
}
