package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

const versionKey = "index_version"

// Store persists media items and the index version stamp they were
// captured at.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the snapshot database at dbPath. The
// parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Snapshot store path: %s", dbPath)

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close snapshot database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to snapshot database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close snapshot database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}

	logging.Info("Snapshot store initialized at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		detected_text TEXT NOT NULL DEFAULT '',
		face_clusters TEXT NOT NULL DEFAULT '[]',
		location TEXT NOT NULL DEFAULT '',
		is_favorite INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		analyzed_fingerprint TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
	CREATE INDEX IF NOT EXISTS idx_items_state ON items(state);

	-- Metadata table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the snapshot database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored catalog with the given items and records
// the index version they were captured at. The replacement is a
// single transaction so a crash mid-save never leaves a torn
// snapshot.
func (s *Store) Save(ctx context.Context, items []library.MediaItem, version int64) (err error) {
	done := metrics.ObserveSnapshotOp("save")
	defer func() { done(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, fingerprint, created_at, kind, tags, detected_text,
			face_clusters, location, is_favorite, state, analyzed_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			logging.Error("failed to close insert statement: %v", closeErr)
		}
	}()

	for _, item := range items {
		tags, jerr := json.Marshal(orEmpty(item.Attributes.Tags))
		if jerr != nil {
			err = fmt.Errorf("failed to encode tags for %s: %w", item.ID, jerr)
			return err
		}
		clusters, jerr := json.Marshal(orEmpty(item.Attributes.FaceClusters))
		if jerr != nil {
			err = fmt.Errorf("failed to encode face clusters for %s: %w", item.ID, jerr)
			return err
		}
		favorite := 0
		if item.IsFavorite {
			favorite = 1
		}
		if _, err = stmt.ExecContext(ctx,
			item.ID, item.Fingerprint, item.CreatedAt.Unix(), string(item.Kind),
			string(tags), item.Attributes.DetectedText, string(clusters),
			item.Attributes.Location, favorite, string(item.State),
			item.AnalyzedFingerprint,
		); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, versionKey, fmt.Sprintf("%d", version)); err != nil {
		return fmt.Errorf("failed to store version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	logging.Debug("Snapshot saved: %d items at version %d", len(items), version)
	return nil
}

// Load returns the stored catalog and its version stamp. A missing or
// empty database yields an empty slice and version 0, not an error.
func (s *Store) Load(ctx context.Context) (items []library.MediaItem, version int64, err error) {
	done := metrics.ObserveSnapshotOp("load")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, created_at, kind, tags, detected_text,
			face_clusters, location, is_favorite, state, analyzed_fingerprint
		FROM items
		ORDER BY id
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Error("failed to close item rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		var (
			item     library.MediaItem
			created  int64
			kind     string
			tags     string
			clusters string
			favorite int
			state    string
		)
		if err = rows.Scan(&item.ID, &item.Fingerprint, &created, &kind, &tags,
			&item.Attributes.DetectedText, &clusters, &item.Attributes.Location,
			&favorite, &state, &item.AnalyzedFingerprint); err != nil {
			return nil, 0, fmt.Errorf("failed to scan item: %w", err)
		}
		if err = json.Unmarshal([]byte(tags), &item.Attributes.Tags); err != nil {
			return nil, 0, fmt.Errorf("failed to decode tags for %s: %w", item.ID, err)
		}
		if err = json.Unmarshal([]byte(clusters), &item.Attributes.FaceClusters); err != nil {
			return nil, 0, fmt.Errorf("failed to decode face clusters for %s: %w", item.ID, err)
		}
		item.CreatedAt = time.Unix(created, 0).UTC()
		item.Kind = library.MediaKind(kind)
		item.IsFavorite = favorite == 1
		item.State = library.ProcessingState(state)
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read items: %w", err)
	}

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, versionKey).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return nil, 0, fmt.Errorf("failed to read snapshot version: %w", err)
	default:
		if _, serr := fmt.Sscanf(raw, "%d", &version); serr != nil {
			return nil, 0, fmt.Errorf("malformed snapshot version %q: %w", raw, serr)
		}
	}

	logging.Debug("Snapshot loaded: %d items at version %d", len(items), version)
	return items, version, nil
}

// orEmpty keeps JSON columns as [] rather than null.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
