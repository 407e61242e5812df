// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package journal provides a Postgres-backed audit trail of terminal
// pipeline outcomes. The journal is observability only: admission state
// lives in process memory (or Redis), never here.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is a single recorded outcome.
type Entry struct {
	ID         string
	JobID      string
	Sender     string
	Origin     string
	State      string
	Reason     string
	ImageCount int
	CreatedAt  time.Time
}

// Store provides append and list operations for the outcome journal.
// A nil *Store is valid and drops writes — the bridge runs without
// Postgres in small setups.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a journal store backed by the given Postgres pool.
// It ensures the print_jobs table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	slog.Info("outcome journal initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS print_jobs (
			id          UUID PRIMARY KEY,
			job_id      TEXT DEFAULT '',
			sender      TEXT NOT NULL,
			origin      TEXT NOT NULL,
			state       TEXT NOT NULL,
			reason      TEXT DEFAULT '',
			image_count INT DEFAULT 0,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_print_jobs_sender ON print_jobs(sender);
		CREATE INDEX IF NOT EXISTS idx_print_jobs_created ON print_jobs(created_at);
	`)
	return err
}

// Record appends an outcome. Journal failures are logged by the caller
// and never affect the request outcome.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil {
		return nil
	}

	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO print_jobs (id, job_id, sender, origin, state, reason, image_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, e.JobID, e.Sender, e.Origin, e.State, e.Reason, e.ImageCount)
	return err
}

// ListRecent returns the most recent entries, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, sender, origin, state, reason, image_count, created_at
		FROM print_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// collectEntries scans multiple rows into a slice of Entries.
func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.Sender, &e.Origin, &e.State,
			&e.Reason, &e.ImageCount, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
