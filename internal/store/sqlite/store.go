// Package sqlite persists character profiles, relationship scores, and the
// grammar mistake log.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	orchestration "github.com/polyglotgames/dialogue-core/core"
)

// Store implements the profile and mistake repositories on a single SQLite
// database.
type Store struct {
	db *sql.DB
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS characters (
			character_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			personality TEXT NOT NULL,
			backstory TEXT,
			language_level TEXT,
			emotional_tone TEXT,
			voice TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS character_relationships (
			character_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (character_id, participant_id),
			FOREIGN KEY (character_id) REFERENCES characters(character_id)
		)`,
		`CREATE TABLE IF NOT EXISTS grammar_mistakes (
			mistake_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			category TEXT NOT NULL,
			original TEXT NOT NULL,
			correction TEXT NOT NULL,
			explanation TEXT,
			severity INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mistakes_participant
			ON grammar_mistakes(participant_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertProfile creates or replaces a character definition. Used by seeding
// and content tooling, not by the turn path.
func (s *Store) UpsertProfile(ctx context.Context, profile orchestration.CharacterProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (character_id, name, personality, backstory, language_level, emotional_tone, voice)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(character_id) DO UPDATE SET
			name = excluded.name,
			personality = excluded.personality,
			backstory = excluded.backstory,
			language_level = excluded.language_level,
			emotional_tone = excluded.emotional_tone,
			voice = excluded.voice`,
		profile.ID, profile.Name, profile.Personality, profile.Backstory,
		profile.LanguageLevel, profile.EmotionalTone, profile.Voice)
	if err != nil {
		return fmt.Errorf("failed to upsert character %s: %w", profile.ID, err)
	}
	return nil
}

func (s *Store) Profile(ctx context.Context, characterID string) (*orchestration.CharacterProfile, error) {
	var profile orchestration.CharacterProfile
	var backstory, level, tone, voice sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT character_id, name, personality, backstory, language_level, emotional_tone, voice
		 FROM characters WHERE character_id = ?`, characterID).
		Scan(&profile.ID, &profile.Name, &profile.Personality, &backstory, &level, &tone, &voice)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown character %q", characterID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load character %s: %w", characterID, err)
	}

	profile.Backstory = backstory.String
	profile.LanguageLevel = level.String
	profile.EmotionalTone = tone.String
	profile.Voice = voice.String
	return &profile, nil
}

// AdjustRelationship applies delta to the stored score, clamped to [-1, 1],
// and returns the new value. An unknown pair starts from zero.
func (s *Store) AdjustRelationship(ctx context.Context, characterID, participantID string, delta float64) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current float64
	err = tx.QueryRowContext(ctx,
		`SELECT score FROM character_relationships WHERE character_id = ? AND participant_id = ?`,
		characterID, participantID).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read relationship: %w", err)
	}

	score := orchestration.ClampRelationship(current + delta)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO character_relationships (character_id, participant_id, score, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(character_id, participant_id) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at`,
		characterID, participantID, score, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to store relationship: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit relationship: %w", err)
	}
	return score, nil
}

// Relationship reads the current score without changing it.
func (s *Store) Relationship(ctx context.Context, characterID, participantID string) (float64, error) {
	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM character_relationships WHERE character_id = ? AND participant_id = ?`,
		characterID, participantID).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read relationship: %w", err)
	}
	return score, nil
}

func (s *Store) AppendEntries(ctx context.Context, participantID string, entries []orchestration.MistakeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO grammar_mistakes
				(mistake_id, turn_id, participant_id, category, original, correction, explanation, severity, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.TurnID, participantID, entry.Category,
			entry.Original, entry.Correction, entry.Explanation, entry.Severity,
			entry.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert mistake %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mistakes: %w", err)
	}
	return nil
}

func (s *Store) TopCategories(ctx context.Context, participantID string, limit int) ([]orchestration.CategoryCount, error) {
	if limit < 1 {
		limit = 3
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) AS occurrences
		 FROM grammar_mistakes
		 WHERE participant_id = ?
		 GROUP BY category
		 ORDER BY occurrences DESC, category ASC
		 LIMIT ?`, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []orchestration.CategoryCount
	for rows.Next() {
		var category orchestration.CategoryCount
		if err := rows.Scan(&category.Category, &category.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (s *Store) RecentEntries(ctx context.Context, participantID string, since time.Time) ([]orchestration.MistakeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mistake_id, turn_id, participant_id, category, original, correction, explanation, severity, created_at
		 FROM grammar_mistakes
		 WHERE participant_id = ? AND created_at >= ?
		 ORDER BY created_at ASC`, participantID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query mistakes: %w", err)
	}
	defer rows.Close()

	var entries []orchestration.MistakeEntry
	for rows.Next() {
		var entry orchestration.MistakeEntry
		var explanation sql.NullString
		if err := rows.Scan(&entry.ID, &entry.TurnID, &entry.ParticipantID, &entry.Category,
			&entry.Original, &entry.Correction, &explanation, &entry.Severity, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mistake: %w", err)
		}
		entry.Explanation = explanation.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
