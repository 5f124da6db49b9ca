package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"

	"github.com/nationradar/nation-radar/internal/domain"
)

const (
	postsBucket        = "posts"
	fingerprintsBucket = "content_fingerprints"
)

// boltStore implements Store on top of BoltDB. bbolt serializes read-write transactions,
// so the fingerprint check and both inserts of Append form a single atomic step.
type boltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// fingerprintRecord is the value stored in the fingerprint bucket.
type fingerprintRecord struct {
	CanonicalID string    `json:"canonical_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(createBuckets); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db, now: time.Now}, nil
}

func createBuckets(tx *bolt.Tx) error {
	for _, name := range []string{postsBucket, fingerprintsBucket} {
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Append stores post unless its fingerprint or id is already present.
func (b *boltStore) Append(ctx context.Context, post domain.ScoredPost) (bool, error) {
	if post.ID == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fpKey := []byte(fingerprintKey(post))
	idKey := []byte(post.ID)
	now := b.now()

	var stored bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		posts, fps, err := buckets(tx)
		if err != nil {
			return err
		}

		if fps.Get(fpKey) != nil {
			return nil
		}
		if posts.Get(idKey) != nil {
			return nil
		}

		rowData, err := json.Marshal(newRow(post, now))
		if err != nil {
			return fmt.Errorf("encode post %s: %w", post.ID, err)
		}
		fpData, err := json.Marshal(fingerprintRecord{CanonicalID: post.ID, FirstSeenAt: now.UTC()})
		if err != nil {
			return fmt.Errorf("encode fingerprint for %s: %w", post.ID, err)
		}

		if err := posts.Put(idKey, rowData); err != nil {
			return err
		}
		if err := fps.Put(fpKey, fpData); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, storageErr("bbolt append", err)
	}
	return stored, nil
}

// ListAll returns every stored post.
func (b *boltStore) ListAll(ctx context.Context) ([]domain.StoredPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.StoredPost
	err := b.db.View(func(tx *bolt.Tx) error {
		posts, _, err := buckets(tx)
		if err != nil {
			return err
		}
		out = make([]domain.StoredPost, 0, posts.Stats().KeyN)
		return posts.ForEach(func(k, v []byte) error {
			var r row
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode post %s: %w", k, err)
			}
			out = append(out, r.stored())
			return nil
		})
	})
	if err != nil {
		return nil, storageErr("bbolt list", err)
	}
	return out, nil
}

// Count returns the number of stored posts.
func (b *boltStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		posts, _, err := buckets(tx)
		if err != nil {
			return err
		}
		n = posts.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, storageErr("bbolt count", err)
	}
	return n, nil
}

// Purge drops and recreates both buckets.
func (b *boltStore) Purge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{postsBucket, fingerprintsBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bolterrors.ErrBucketNotFound) {
				return fmt.Errorf("drop bucket %s: %w", name, err)
			}
		}
		return createBuckets(tx)
	})
	if err != nil {
		return storageErr("bbolt purge", err)
	}
	return nil
}

// LookupFingerprint returns the record indexed for a fingerprint, if any.
func (b *boltStore) LookupFingerprint(ctx context.Context, fp string) (domain.SeenFingerprintRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.SeenFingerprintRecord{}, false, err
	}

	var (
		rec   domain.SeenFingerprintRecord
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		_, fps, err := buckets(tx)
		if err != nil {
			return err
		}
		v := fps.Get([]byte(fp))
		if v == nil {
			return nil
		}
		var fr fingerprintRecord
		if err := json.Unmarshal(v, &fr); err != nil {
			return fmt.Errorf("decode fingerprint %s: %w", fp, err)
		}
		rec = domain.SeenFingerprintRecord{Fingerprint: fp, CanonicalID: fr.CanonicalID, FirstSeenAt: fr.FirstSeenAt}
		found = true
		return nil
	})
	if err != nil {
		return rec, false, storageErr("bbolt fingerprint lookup", err)
	}
	return rec, found, nil
}

func buckets(tx *bolt.Tx) (*bolt.Bucket, *bolt.Bucket, error) {
	posts := tx.Bucket([]byte(postsBucket))
	if posts == nil {
		return nil, nil, fmt.Errorf("posts bucket missing")
	}
	fps := tx.Bucket([]byte(fingerprintsBucket))
	if fps == nil {
		return nil, nil, fmt.Errorf("content_fingerprints bucket missing")
	}
	return posts, fps, nil
}
