package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/internal/storage/migrations"
)

const sqliteDSNParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// sqliteStore implements Store on a single-connection SQLite database. Append runs inside
// one transaction, so the fingerprint claim and the post insert commit or roll back together.
type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

func openSQLite(path string) (*sqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+sqliteDSNParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	if version, latest, err := migrations.Status(db); err != nil || !latest {
		db.Close()
		if err == nil {
			err = fmt.Errorf("schema at version %d is behind the embedded migrations", version)
		}
		return nil, fmt.Errorf("check sqlite schema: %w", err)
	}

	return newSQLiteStore(db), nil
}

func newSQLiteStore(db *sql.DB) *sqliteStore {
	return &sqliteStore{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append claims the content fingerprint first and inserts the post second. Either claim
// failing rolls the transaction back and reports false.
func (s *sqliteStore) Append(ctx context.Context, post domain.ScoredPost) (bool, error) {
	if post.ID == "" {
		return false, nil
	}

	r := newRow(post, s.now())
	engagement, err := json.Marshal(r.Engagement)
	if err != nil {
		return false, fmt.Errorf("encode engagement for %s: %w", post.ID, err)
	}
	insertedAt := r.InsertedAt.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("sqlite begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO content_fingerprints (fingerprint, canonical_id, first_seen_at) VALUES (?, ?, ?)`,
		fingerprintKey(post), r.ID, insertedAt)
	if err != nil {
		return false, storageErr("sqlite claim fingerprint", err)
	}
	if claimed, err := res.RowsAffected(); err != nil {
		return false, storageErr("sqlite claim fingerprint", err)
	} else if claimed == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO posts (id, username, text, score, url, created_at, engagement, inserted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Username, r.Text, r.Score, r.URL, r.CreatedAt, string(engagement), insertedAt)
	if err != nil {
		return false, storageErr("sqlite insert post", err)
	}
	if inserted, err := res.RowsAffected(); err != nil {
		return false, storageErr("sqlite insert post", err)
	} else if inserted == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, storageErr("sqlite commit", err)
	}
	return true, nil
}

// ListAll returns every stored post.
func (s *sqliteStore) ListAll(ctx context.Context) ([]domain.StoredPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, text, score, url, created_at, engagement, inserted_at FROM posts`)
	if err != nil {
		return nil, storageErr("sqlite list", err)
	}
	defer rows.Close()

	var out []domain.StoredPost
	for rows.Next() {
		var (
			r          row
			engagement string
			insertedAt string
		)
		if err := rows.Scan(&r.ID, &r.Username, &r.Text, &r.Score, &r.URL, &r.CreatedAt, &engagement, &insertedAt); err != nil {
			return nil, storageErr("sqlite scan post", err)
		}
		if engagement != "" {
			if err := json.Unmarshal([]byte(engagement), &r.Engagement); err != nil {
				return nil, storageErr("sqlite decode engagement", fmt.Errorf("post %s: %w", r.ID, err))
			}
		}
		r.InsertedAt, _ = time.Parse(time.RFC3339Nano, insertedAt)
		out = append(out, r.stored())
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite list", err)
	}
	return out, nil
}

// Count returns the number of stored posts.
func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, storageErr("sqlite count", err)
	}
	return n, nil
}

// Purge deletes every post and fingerprint in one transaction.
func (s *sqliteStore) Purge(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("sqlite begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"posts", "content_fingerprints"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return storageErr("sqlite purge "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("sqlite commit", err)
	}
	return nil
}

// LookupFingerprint returns the record indexed for a fingerprint, if any.
func (s *sqliteStore) LookupFingerprint(ctx context.Context, fp string) (domain.SeenFingerprintRecord, bool, error) {
	var (
		rec       = domain.SeenFingerprintRecord{Fingerprint: fp}
		firstSeen string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT canonical_id, first_seen_at FROM content_fingerprints WHERE fingerprint = ?`, fp).
		Scan(&rec.CanonicalID, &firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SeenFingerprintRecord{}, false, nil
	}
	if err != nil {
		return domain.SeenFingerprintRecord{}, false, storageErr("sqlite fingerprint lookup", err)
	}
	rec.FirstSeenAt, _ = time.Parse(time.RFC3339Nano, firstSeen)
	return rec, true, nil
}
