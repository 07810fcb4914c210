package stories

import (
	"context"
	"database/sql"
	"fmt"
)

const sqliteSchema = `
create table if not exists stories (
	id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	transcript text not null,
	title text not null default '',
	translated_text text not null default '',
	cultural_notes text not null default '[]',
	summary text not null default '',
	audio_url text not null,
	audio_checksum text not null default '',
	language_code text not null default '',
	language_name text not null default '',
	region text not null default '',
	speaker_name text not null default '',
	created_at integer not null
);
create index if not exists stories_created_at on stories (created_at desc);
create index if not exists stories_region_created_at on stories (region, created_at desc);`

const postgresSchema = `
create table if not exists stories (
	id BIGSERIAL PRIMARY KEY,
	transcript text not null,
	title text not null default '',
	translated_text text not null default '',
	cultural_notes text not null default '[]',
	summary text not null default '',
	audio_url text not null,
	audio_checksum text not null default '',
	language_code text not null default '',
	language_name text not null default '',
	region text not null default '',
	speaker_name text not null default '',
	created_at bigint not null
);
create index if not exists stories_created_at on stories (created_at desc);
create index if not exists stories_region_created_at on stories (region, created_at desc);`

// MigrateSQL creates the stories table for the given database/sql driver name
// ("sqlite3" or "pgx").
func MigrateSQL(ctx context.Context, db *sql.DB, driver string) error {
	var ddl string
	switch driver {
	case "sqlite3":
		ddl = sqliteSchema
	case "pgx":
		ddl = postgresSchema
	default:
		return fmt.Errorf("migrate stories: unsupported sql driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate stories: %w", err)
	}
	return nil
}
