package store

import (
	"context"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

// Store is the durable system of record for configuration and reminders.
type Store interface {
	LoadUsers(ctx context.Context) ([]domain.UserConfig, error)
	LoadGuilds(ctx context.Context) ([]domain.GuildConfig, error)
	// UpsertUserFields writes only the listed fields of u, inserting the row
	// with column defaults for everything else when it does not exist yet.
	UpsertUserFields(ctx context.Context, u domain.UserConfig, fields []domain.UserField) error
	UpsertGuildFields(ctx context.Context, g domain.GuildConfig, fields []domain.GuildField) error

	ListReminders(ctx context.Context) ([]domain.Reminder, error)
	InsertReminder(ctx context.Context, r domain.Reminder) (int64, error)
	// UpdateReminder rewrites fire_at, content and repeat_policy; domain.ErrNotFound if the row is gone.
	UpdateReminder(ctx context.Context, r domain.Reminder) error
	DeleteReminder(ctx context.Context, id int64) (bool, error)

	LoadTags(ctx context.Context) ([]domain.Tag, error)
	InsertTag(ctx context.Context, t domain.Tag) error
	// UpdateTagContent rewrites an original tag's content; domain.ErrNotFound for aliases and missing rows.
	UpdateTagContent(ctx context.Context, name, content string) error
	// DeleteTag removes the row and every alias pointing at it.
	DeleteTag(ctx context.Context, name string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
