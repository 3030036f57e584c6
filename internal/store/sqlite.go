// ABOUTME: SQLite archival of completed matches using modernc.org/sqlite.
// ABOUTME: Returns a blake3 content identifier per archived record; never blocks matches.

package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/moltpit/arena/internal/match"
)

// ErrMatchNotArchived indicates no archived record exists for the id.
var ErrMatchNotArchived = errors.New("match not archived")

// SQLiteStore archives finished matches. It implements match.Archiver.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the archive database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps archival writes from stalling concurrent readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("archive store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS archived_matches (
			match_id TEXT PRIMARY KEY,
			content_id TEXT NOT NULL,
			tournament_id TEXT,
			game_type TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL,
			archived_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_archived_matches_game_type
			ON archived_matches(game_type);

		CREATE INDEX IF NOT EXISTS idx_archived_matches_tournament
			ON archived_matches(tournament_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ArchiveMatch persists the canonical record of a finished match and
// returns its content identifier. Re-archiving the same record is
// idempotent: the same bytes produce the same content id and replace the
// existing row.
func (s *SQLiteStore) ArchiveMatch(ctx context.Context, record *match.ArchiveRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshaling archive record: %w", err)
	}

	sum := blake3.Sum256(payload)
	contentID := hex.EncodeToString(sum[:])

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO archived_matches
			(match_id, content_id, tournament_id, game_type, record,
			 created_at, started_at, completed_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id) DO UPDATE SET
			content_id = excluded.content_id,
			record = excluded.record,
			archived_at = excluded.archived_at`,
		record.MatchID,
		contentID,
		record.TournamentID,
		record.GameType,
		string(payload),
		record.CreatedAt.UTC(),
		record.StartedAt.UTC(),
		record.CompletedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting archive record: %w", err)
	}

	s.logger.Info("match archived",
		"match_id", record.MatchID,
		"content_id", contentID,
		"game_type", record.GameType,
	)
	return contentID, nil
}

// GetArchivedMatch loads the archived record for a match id.
// Returns ErrMatchNotArchived if none exists.
func (s *SQLiteStore) GetArchivedMatch(ctx context.Context, matchID string) (*match.ArchiveRecord, string, error) {
	var payload, contentID string
	err := s.db.QueryRowContext(ctx,
		`SELECT record, content_id FROM archived_matches WHERE match_id = ?`,
		matchID,
	).Scan(&payload, &contentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrMatchNotArchived, matchID)
	}
	if err != nil {
		return nil, "", fmt.Errorf("querying archive record: %w", err)
	}

	var record match.ArchiveRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, "", fmt.Errorf("unmarshaling archive record: %w", err)
	}
	return &record, contentID, nil
}

// ListArchivedMatches returns the ids of archived matches, newest first.
func (s *SQLiteStore) ListArchivedMatches(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id FROM archived_matches ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing archived matches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
