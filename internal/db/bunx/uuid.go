package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary keys.
//
// Time ordering keeps index inserts append-mostly on both PostgreSQL and SQLite,
// and avoids any dependency on database-side generators such as gen_random_uuid().
//
// Panics only if the entropy source fails.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
