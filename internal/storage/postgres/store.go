// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// Schema creates the tables used by Store and RunStore.
const Schema = `
CREATE TABLE IF NOT EXISTS sequence_counters (
	sequence_name TEXT PRIMARY KEY,
	counter       BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS speakers (
	id      BIGINT PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	bio     TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	picture TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS talks (
	id          BIGINT PRIMARY KEY,
	permalink   TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL DEFAULT '',
	duration    INTEGER NOT NULL DEFAULT 0,
	talk_date   TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	venue       TEXT NOT NULL DEFAULT '',
	event       TEXT,
	source      TEXT NOT NULL DEFAULT '',
	license     TEXT NOT NULL DEFAULT '',
	speaker_id  BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS crawl_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	request      JSONB NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ,
	summary      JSONB
);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists talks, speakers, and sequence counters in Postgres.
type Store struct {
	pool pool
}

// Connect opens a pgx pool from cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// NewStore constructs a store from an existing pool.
func NewStore(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Increment adds amount to the named counter, creating it at zero first, and
// returns the new value in one round-trip.
func (s *Store) Increment(ctx context.Context, sequence string, amount int64) (int64, error) {
	const query = `
		INSERT INTO sequence_counters (sequence_name, counter)
		VALUES ($1, $2)
		ON CONFLICT (sequence_name) DO UPDATE
		SET counter = sequence_counters.counter + EXCLUDED.counter
		RETURNING counter;
	`
	var value int64
	if err := s.pool.QueryRow(ctx, query, sequence, amount).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment sequence %q: %w", sequence, err)
	}
	return value, nil
}

// FindTalk looks a talk up by permalink.
func (s *Store) FindTalk(ctx context.Context, permalink string) (crawler.Talk, bool, error) {
	const query = `
		SELECT id, permalink, title, duration, talk_date, description, venue, event, source, license, speaker_id
		FROM talks
		WHERE permalink = $1;
	`
	var talk crawler.Talk
	err := s.pool.QueryRow(ctx, query, permalink).Scan(
		&talk.ID,
		&talk.Permalink,
		&talk.Title,
		&talk.Duration,
		&talk.Date,
		&talk.Description,
		&talk.Venue,
		&talk.Event,
		&talk.Source,
		&talk.License,
		&talk.SpeakerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Talk{}, false, nil
		}
		return crawler.Talk{}, false, fmt.Errorf("select talk: %w", err)
	}
	return talk, true, nil
}

// UpsertTalk writes every field of talk, keyed by permalink. The stored id
// is never changed once assigned.
func (s *Store) UpsertTalk(ctx context.Context, talk crawler.Talk) error {
	const query = `
		INSERT INTO talks (id, permalink, title, duration, talk_date, description, venue, event, source, license, speaker_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (permalink) DO UPDATE
		SET title = EXCLUDED.title,
			duration = EXCLUDED.duration,
			talk_date = EXCLUDED.talk_date,
			description = EXCLUDED.description,
			venue = EXCLUDED.venue,
			event = EXCLUDED.event,
			source = EXCLUDED.source,
			license = EXCLUDED.license,
			speaker_id = EXCLUDED.speaker_id;
	`
	_, err := s.pool.Exec(ctx, query,
		talk.ID,
		talk.Permalink,
		talk.Title,
		talk.Duration,
		talk.Date,
		talk.Description,
		talk.Venue,
		talk.Event,
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
		WHERE name = $1;
	`
	var speaker crawler.Speaker
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&speaker.ID,
		&speaker.Name,
		&speaker.Bio,
		&speaker.Website,
		&speaker.Picture,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET bio = EXCLUDED.bio,
			website = EXCLUDED.website,
			picture = EXCLUDED.picture;
	`
	_, err := s.pool.Exec(ctx, query,
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
