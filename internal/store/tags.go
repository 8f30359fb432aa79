package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
)

// LoadTags returns every stored tag, aliases included.
func (s *SQLStore) LoadTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, owner_id, content, alias, created_at
		FROM tags
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Tag
	for rows.Next() {
		var (
			t       domain.Tag
			alias   sql.NullString
			created int64
		)
		if err := rows.Scan(&t.Name, &t.OwnerID, &t.Content, &alias, &created); err != nil {
			return nil, err
		}
		t.Alias = alias.String
		t.CreatedAt = fromUnix(created)
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// InsertTag stores a new tag or alias.
func (s *SQLStore) InsertTag(ctx context.Context, t domain.Tag) error {
	var alias any
	if t.IsAlias() {
		alias = t.Alias
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO tags (name, owner_id, content, alias, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		t.Name, t.OwnerID, t.Content, alias, toUnix(t.CreatedAt),
	)
	return err
}

// UpdateTagContent rewrites the content of an original tag.
func (s *SQLStore) UpdateTagContent(ctx context.Context, name, content string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE tags SET content = ? WHERE name = ? AND alias IS NULL`),
		content, name,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tag %q: %w", name, domain.ErrNotFound)
	}
	return nil
}

// DeleteTag removes the tag; aliases pointing at it go with it.
func (s *SQLStore) DeleteTag(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM tags WHERE name = ?`), name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
