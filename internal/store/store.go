// Package store is the local SQLite journal of the osce client: the login
// cookies of each server, saved station transcripts and a few settings.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/medsim/osce/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would open its own empty database.
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cookies (
		server TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '/',
		expires_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (server, name, path)
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server TEXT NOT NULL,
		competition_id INTEGER NOT NULL DEFAULT 0,
		case_number TEXT NOT NULL,
		specialty TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		max_score REAL NOT NULL DEFAULT 0,
		saved_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transcript_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transcript_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (transcript_id) REFERENCES transcripts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTranscript stores a consultation with its messages.
func (s *Store) SaveTranscript(t model.SavedTranscript) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	savedAt := t.SavedAt
	if savedAt.IsZero() {
		savedAt = s.now()
	}
	res, err := tx.Exec(
		`INSERT INTO transcripts (server, competition_id, case_number, specialty, score, max_score, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Server, t.CompetitionID, string(t.CaseNumber), t.Specialty, t.Score, t.MaxScore, savedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, m := range t.Messages {
		at := m.At
		if at.IsZero() {
			at = savedAt
		}
		if _, err := tx.Exec(
			`INSERT INTO transcript_messages (transcript_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			id, string(m.Role), m.Content, at,
		); err != nil {
			return 0, err
		}
	}

	return id, tx.Commit()
}

// ListTranscripts returns the newest transcripts first, without messages.
// A limit of zero or less returns all of them.
func (s *Store) ListTranscripts(limit int) ([]model.SavedTranscript, error) {
	query := `SELECT t.id, t.server, t.competition_id, t.case_number, t.specialty, t.score, t.max_score, t.saved_at,
		(SELECT COUNT(*) FROM transcript_messages m WHERE m.transcript_id = t.id)
		FROM transcripts t ORDER BY t.saved_at DESC, t.id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SavedTranscript
	for rows.Next() {
		var t model.SavedTranscript
		var caseNumber string
		if err := rows.Scan(&t.ID, &t.Server, &t.CompetitionID, &caseNumber, &t.Specialty, &t.Score, &t.MaxScore, &t.SavedAt, &t.MessageCount); err != nil {
			return nil, err
		}
		t.CaseNumber = model.CaseNumber(caseNumber)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTranscript returns a transcript with its messages, or sql.ErrNoRows.
func (s *Store) GetTranscript(id int64) (model.SavedTranscript, error) {
	var t model.SavedTranscript
	var caseNumber string
	err := s.db.QueryRow(
		`SELECT id, server, competition_id, case_number, specialty, score, max_score, saved_at FROM transcripts WHERE id = ?`, id,
	).Scan(&t.ID, &t.Server, &t.CompetitionID, &caseNumber, &t.Specialty, &t.Score, &t.MaxScore, &t.SavedAt)
	if err != nil {
		return t, err
	}
	t.CaseNumber = model.CaseNumber(caseNumber)

	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM transcript_messages WHERE transcript_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return t, err
	}
	defer rows.Close()
	for rows.Next() {
		var m model.ChatMessage
		var role string
		if err := rows.Scan(&role, &m.Content, &m.At); err != nil {
			return t, err
		}
		m.Role = model.Role(role)
		t.Messages = append(t.Messages, m)
	}
	t.MessageCount = len(t.Messages)
	return t, rows.Err()
}

// DeleteTranscript removes a transcript and its messages.
func (s *Store) DeleteTranscript(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM transcript_messages WHERE transcript_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM transcripts WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// TranscriptCount returns the number of saved transcripts.
func (s *Store) TranscriptCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transcripts`).Scan(&count)
	return count, err
}
