package storage

import (
	"context"
	"database/sql"
	"errors"
)

// GetPrefix returns the stored invocation prefix for one community.
func (s *Store) GetPrefix(ctx context.Context, communityID int64) (string, bool, error) {
	var prefix string
	err := s.db.GetContext(ctx, &prefix,
		`SELECT prefix FROM prefixes WHERE guildid = $1`,
		communityID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageFailure("get prefix", err)
	}

	return prefix, true, nil
}

// SetPrefix inserts or replaces the community's prefix as one atomic statement.
func (s *Store) SetPrefix(ctx context.Context, communityID int64, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefixes (guildid, prefix) VALUES ($1, $2)
		 ON CONFLICT (guildid) DO UPDATE SET prefix = excluded.prefix`,
		communityID, prefix)
	if err != nil {
		return storageFailure("set prefix", err)
	}

	return nil
}
