package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

// GetTag returns the content stored under (communityID, name).
func (s *Store) GetTag(ctx context.Context, communityID int64, name string) (string, bool, error) {
	name = jolteon.NormalizeTagName(name)

	var content string
	err := s.db.GetContext(ctx, &content,
		`SELECT tagcontent FROM tags WHERE guildid = $1 AND tagname = $2`,
		communityID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageFailure(fmt.Sprintf("get tag %s", name), err)
	}

	return content, true, nil
}

// UpsertTag inserts or replaces tag content as one atomic statement.
func (s *Store) UpsertTag(ctx context.Context, communityID int64, name string, content string) error {
	name = jolteon.NormalizeTagName(name)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (guildid, tagname, tagcontent) VALUES ($1, $2, $3)
		 ON CONFLICT (guildid, tagname) DO UPDATE SET tagcontent = excluded.tagcontent`,
		communityID, name, content)
	if err != nil {
		return storageFailure(fmt.Sprintf("upsert tag %s", name), err)
	}

	return nil
}

// DeleteTag removes the row under (communityID, name). Absent rows succeed.
func (s *Store) DeleteTag(ctx context.Context, communityID int64, name string) error {
	name = jolteon.NormalizeTagName(name)

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE guildid = $1 AND tagname = $2`,
		communityID, name)
	if err != nil {
		return storageFailure(fmt.Sprintf("delete tag %s", name), err)
	}

	return nil
}

// ListTags returns all tag names stored for one community in name order.
func (s *Store) ListTags(ctx context.Context, communityID int64) ([]string, error) {
	names := make([]string, 0)
	err := s.db.SelectContext(ctx, &names,
		`SELECT tagname FROM tags WHERE guildid = $1 ORDER BY tagname`,
		communityID)
	if err != nil {
		return nil, storageFailure("list tags", err)
	}

	return names, nil
}
