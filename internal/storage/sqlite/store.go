// Package sqlite provides single-file persistence on top of go-sqlite3 for
// local crawls that do not warrant a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// Schema creates the tables used by Store and RunStore.
const Schema = `
CREATE TABLE IF NOT EXISTS sequence_counters (
	sequence_name TEXT PRIMARY KEY,
	counter       INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS speakers (
	id      INTEGER PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	bio     TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	picture TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS talks (
	id          INTEGER PRIMARY KEY,
	permalink   TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL DEFAULT '',
	duration    INTEGER NOT NULL DEFAULT 0,
	talk_date   TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	venue       TEXT NOT NULL DEFAULT '',
	event       TEXT,
	source      TEXT NOT NULL DEFAULT '',
	license     TEXT NOT NULL DEFAULT '',
	speaker_id  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS crawl_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	request      TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	started_at   TEXT,
	finished_at  TEXT,
	summary      TEXT
);
`

// Open opens the database at path, creating its directory when needed.
// ":memory:" yields a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return db, nil
}

// Store persists talks, speakers, and sequence counters in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store on db.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Increment adds amount to the named counter and returns the new value.
func (s *Store) Increment(ctx context.Context, sequence string, amount int64) (int64, error) {
	const query = `
		INSERT INTO sequence_counters (sequence_name, counter)
		VALUES (?, ?)
		ON CONFLICT (sequence_name) DO UPDATE
		SET counter = sequence_counters.counter + excluded.counter
		RETURNING counter;
	`
	var value int64
	if err := s.db.QueryRowContext(ctx, query, sequence, amount).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment sequence %q: %w", sequence, err)
	}
	return value, nil
}

// FindTalk looks a talk up by permalink.
func (s *Store) FindTalk(ctx context.Context, permalink string) (crawler.Talk, bool, error) {
	const query = `
		SELECT id, permalink, title, duration, talk_date, description, venue, event, source, license, speaker_id
		FROM talks
		WHERE permalink = ?;
	`
	var (
		talk  crawler.Talk
		event sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, permalink).Scan(
		&talk.ID,
		&talk.Permalink,
		&talk.Title,
		&talk.Duration,
		&talk.Date,
		&talk.Description,
		&talk.Venue,
		&event,
		&talk.Source,
		&talk.License,
		&talk.SpeakerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Talk{}, false, nil
		}
		return crawler.Talk{}, false, fmt.Errorf("select talk: %w", err)
	}
	if event.Valid {
		talk.Event = &event.String
	}
	return talk, true, nil
}

// UpsertTalk writes every field of talk, keyed by permalink. The stored id
// is never changed once assigned.
func (s *Store) UpsertTalk(ctx context.Context, talk crawler.Talk) error {
	const query = `
		INSERT INTO talks (id, permalink, title, duration, talk_date, description, venue, event, source, license, speaker_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (permalink) DO UPDATE
		SET title = excluded.title,
			duration = excluded.duration,
			talk_date = excluded.talk_date,
			description = excluded.description,
			venue = excluded.venue,
			event = excluded.event,
			source = excluded.source,
			license = excluded.license,
			speaker_id = excluded.speaker_id;
	`
	var event sql.NullString
	if talk.Event != nil {
		event = sql.NullString{String: *talk.Event, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		talk.ID,
		talk.Permalink,
		talk.Title,
		talk.Duration,
		talk.Date,
		talk.Description,
		talk.Venue,
		event,
		talk.Source,
		talk.License,
		talk.SpeakerID,
	)
	if err != nil {
		return fmt.Errorf("upsert talk: %w", err)
	}
	return nil
}

// FindSpeaker looks a speaker up by name.
func (s *Store) FindSpeaker(ctx context.Context, name string) (crawler.Speaker, bool, error) {
	const query = `
		SELECT id, name, bio, website, picture
		FROM speakers
		WHERE name = ?;
	`
	var speaker crawler.Speaker
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&speaker.ID,
		&speaker.Name,
		&speaker.Bio,
		&speaker.Website,
		&speaker.Picture,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Speaker{}, false, nil
		}
		return crawler.Speaker{}, false, fmt.Errorf("select speaker: %w", err)
	}
	return speaker, true, nil
}

// UpsertSpeaker writes every field of speaker, keyed by name.
func (s *Store) UpsertSpeaker(ctx context.Context, speaker crawler.Speaker) error {
	const query = `
		INSERT INTO speakers (id, name, bio, website, picture)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET bio = excluded.bio,
			website = excluded.website,
			picture = excluded.picture;
	`
	_, err := s.db.ExecContext(ctx, query,
		speaker.ID,
		speaker.Name,
		speaker.Bio,
		speaker.Website,
		speaker.Picture,
	)
	if err != nil {
		return fmt.Errorf("upsert speaker: %w", err)
	}
	return nil
}
