package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/crypto"
	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "pgx"
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unknown db driver %q", s)
}

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

func (d Dialect) migrationsDir() string {
	if d == DialectPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Options configures Open.
type Options struct {
	Dialect   Dialect
	DSN       string
	Encryptor crypto.Encryptor // nil stores secrets in plaintext
	Log       *zap.Logger
}

// SQLStore implements Store on database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	enc     crypto.Encryptor
}

// Open connects, runs migrations and returns a ready store. Any failure
// wraps domain.ErrStoreConnection.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	var (
		db  *sql.DB
		err error
	)
	switch opts.Dialect {
	case DialectSQLite:
		db, err = openSQLite(ctx, opts.DSN)
	case DialectPostgres:
		db, err = openPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown dialect %q", opts.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStoreConnection, opts.Dialect, err)
	}

	if err := RunMigrations(ctx, db, opts.Dialect, opts.Log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrations: %w", domain.ErrStoreConnection, err)
	}

	return New(db, opts.Dialect, opts.Encryptor), nil
}

// New wraps an already-migrated database.
func New(db *sql.DB, d Dialect, enc crypto.Encryptor) *SQLStore {
	if enc == nil {
		enc = crypto.Plaintext{}
	}
	return &SQLStore{db: db, dialect: d, enc: enc}
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreConnection, err)
	}
	return nil
}

// Close releases the underlying database resources.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// LoadUsers returns every stored user.
func (s *SQLStore) LoadUsers(ctx context.Context) ([]domain.UserConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, blacklisted, blacklisted_reason, timezone, timezone_private,
		       birthday, birthday_private, refresh_token, created_at
		FROM users
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.UserConfig
	for rows.Next() {
		var (
			u         domain.UserConfig
			birthday  string
			token     string
			createdAt int64
		)
		if err := rows.Scan(
			&u.ID, &u.Blacklisted, &u.BlacklistReason, &u.Timezone, &u.TimezonePrivate,
			&birthday, &u.BirthdayPrivate, &token, &createdAt,
		); err != nil {
			return nil, err
		}
		u.Timezone = domain.NormalizeTZ(u.Timezone)
		u.Birthday = parseBirthday(birthday)
		u.CreatedAt = fromUnix(createdAt)
		if u.RefreshToken, err = s.enc.DecryptString(token); err != nil {
			return nil, fmt.Errorf("user %d: decrypt refresh token: %w", u.ID, err)
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// LoadGuilds returns every stored guild.
func (s *SQLStore) LoadGuilds(ctx context.Context) ([]domain.GuildConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embed_size FROM guilds ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.GuildConfig
	for rows.Next() {
		var (
			g    domain.GuildConfig
			size int
		)
		if err := rows.Scan(&g.ID, &size); err != nil {
			return nil, err
		}
		g.EmbedSize = domain.EmbedSize(size)
		if !g.EmbedSize.Valid() {
			g.EmbedSize = domain.EmbedSmall
		}
		res = append(res, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// UpsertUserFields writes the listed columns of u.
func (s *SQLStore) UpsertUserFields(ctx context.Context, u domain.UserConfig, fields []domain.UserField) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	args = append(args, u.ID)
	for _, f := range fields {
		v, err := s.userColumn(u, f)
		if err != nil {
			return err
		}
		cols = append(cols, string(f))
		args = append(args, v)
	}
	_, err := s.db.ExecContext(ctx, s.upsertQuery("users", cols), args...)
	return err
}

// UpsertGuildFields writes the listed columns of g.
func (s *SQLStore) UpsertGuildFields(ctx context.Context, g domain.GuildConfig, fields []domain.GuildField) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	args = append(args, g.ID)
	for _, f := range fields {
		v, err := guildColumn(g, f)
		if err != nil {
			return err
		}
		cols = append(cols, string(f))
		args = append(args, v)
	}
	_, err := s.db.ExecContext(ctx, s.upsertQuery("guilds", cols), args...)
	return err
}

// upsertQuery builds an insert that on conflict updates only cols.
// Column names come from domain field constants, never from input.
func (s *SQLStore) upsertQuery(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = excluded." + c
	}
	q := fmt.Sprintf("INSERT INTO %s (id, %s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), marks, strings.Join(sets, ", "))
	return s.dialect.rebind(q)
}

// ListReminders returns every stored reminder ordered by fire time.
func (s *SQLStore) ListReminders(ctx context.Context) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, channel_id, created_at, fire_at, content,
		       message_id, message_link, repeat_policy
		FROM reminders
		ORDER BY fire_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Reminder
	for rows.Next() {
		var (
			r               domain.Reminder
			created, fireAt int64
			repeat          int
		)
		if err := rows.Scan(
			&r.ID, &r.OwnerID, &r.ChannelID, &created, &fireAt, &r.Content,
			&r.MessageID, &r.MessageLink, &repeat,
		); err != nil {
			return nil, err
		}
		r.CreatedAt = fromUnixMilli(created)
		r.FireAt = fromUnixMilli(fireAt)
		r.Repeat = domain.Repeat(repeat)
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// InsertReminder stores r and returns its assigned id.
func (s *SQLStore) InsertReminder(ctx context.Context, r domain.Reminder) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO reminders (
			owner_id, channel_id, created_at, fire_at, content,
			message_id, message_link, repeat_policy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		r.OwnerID, r.ChannelID, toUnixMilli(r.CreatedAt), toUnixMilli(r.FireAt), r.Content,
		r.MessageID, r.MessageLink, int(r.Repeat),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateReminder persists a reschedule or edit.
func (s *SQLStore) UpdateReminder(ctx context.Context, r domain.Reminder) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE reminders
		SET fire_at = ?, content = ?, repeat_policy = ?
		WHERE id = ?`),
		toUnixMilli(r.FireAt), r.Content, int(r.Repeat), r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reminder %d: %w", r.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteReminder removes the row and reports whether it existed.
func (s *SQLStore) DeleteReminder(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM reminders WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsNotFound reports whether err is a missing-row condition.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
