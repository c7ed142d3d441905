package jolteon

import "context"

const (
	// MaxTagContentLength bounds tag contents at write time.
	MaxTagContentLength = 1900
	// MaxAggregateLength bounds one aggregated reply body. Reaching it
	// rejects the invocation rather than truncating.
	MaxAggregateLength = 4096
)

// TagStore is persistent CRUD over (community, tagname) -> tagcontent.
//
// Tag names are stored in canonical lowercase form; callers fold names with
// NormalizeTagName before storage and lookup. Content-length and name-shape
// guards run at the command layer before any store mutation.
type TagStore interface {
	// GetTag returns the content stored under (communityID, name).
	// found is false when no row exists.
	GetTag(ctx context.Context, communityID int64, name string) (content string, found bool, err error)
	// UpsertTag inserts or replaces the content under (communityID, name)
	// as one atomic statement.
	UpsertTag(ctx context.Context, communityID int64, name string, content string) error
	// DeleteTag removes the row under (communityID, name). Deleting an
	// absent tag succeeds.
	DeleteTag(ctx context.Context, communityID int64, name string) error
	// ListTags returns all tag names stored for one community in name order.
	ListTags(ctx context.Context, communityID int64) ([]string, error)
}

// PrefixStore is persistent CRUD over community -> prefix string.
type PrefixStore interface {
	// GetPrefix returns the stored prefix for communityID.
	// found is false when the community uses the default prefix.
	GetPrefix(ctx context.Context, communityID int64) (prefix string, found bool, err error)
	// SetPrefix inserts or replaces the community's prefix as one atomic
	// statement. Prefix rows are never deleted, only overwritten.
	SetPrefix(ctx context.Context, communityID int64, prefix string) error
}
