// Package fakes3 provides a minimal in-process S3-compatible endpoint
// covering the operations the conformance battery exercises. It exists
// so the checker and its failure paths can be tested hermetically; it
// is not part of the product surface.
package fakes3

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrBucketAlreadyExists = errors.New("bucket already exists")
	ErrBucketNotEmpty      = errors.New("bucket not empty")
	ErrObjectNotFound      = errors.New("object not found")
)

// Bucket represents a stored bucket.
type Bucket struct {
	Name         string
	CreationDate time.Time
}

// Object represents stored object metadata.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
	Metadata     map[string]string
}

// Store keeps object bodies on the local file system and bucket/object
// metadata in SQLite.
type Store struct {
	dataDir string
	db      *sql.DB
}

// Open creates a Store rooted at dataDir with metadata in dbPath.
func Open(dataDir, dbPath string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{dataDir: dataDir, db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS buckets (
			name TEXT PRIMARY KEY,
			creation_date DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create buckets table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS objects (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			size INTEGER NOT NULL,
			last_modified DATETIME NOT NULL,
			etag TEXT NOT NULL,
			content_type TEXT NOT NULL,
			metadata TEXT,
			PRIMARY KEY (bucket, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create objects table: %w", err)
	}

	return nil
}

// CreateBucket creates a new bucket.
func (s *Store) CreateBucket(ctx context.Context, name string) error {
	exists, err := s.BucketExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrBucketAlreadyExists
	}

	if err := os.MkdirAll(filepath.Join(s.dataDir, name), 0755); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO buckets (name, creation_date) VALUES (?, ?)
	`, name, time.Now().UTC())
	return err
}

// DeleteBucket deletes an empty bucket.
func (s *Store) DeleteBucket(ctx context.Context, name string) error {
	exists, err := s.BucketExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBucketNotFound
	}

	count, err := s.CountObjects(ctx, name)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrBucketNotEmpty
	}

	if err := os.RemoveAll(filepath.Join(s.dataDir, name)); err != nil {
		return fmt.Errorf("failed to delete bucket directory: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name)
	return err
}

// BucketExists checks whether a bucket exists.
func (s *Store) BucketExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListBuckets returns all buckets ordered by name.
func (s *Store) ListBuckets(ctx context.Context) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, creation_date FROM buckets ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Name, &b.CreationDate); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// CountObjects returns the number of objects in a bucket.
func (s *Store) CountObjects(ctx context.Context, bucket string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE bucket = ?`, bucket).Scan(&count)
	return count, err
}

// PutObject stores body under bucket/key and records its metadata. The
// body is written to a temporary file and renamed into place so a
// partial write never replaces an existing object.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) (*Object, error) {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBucketNotFound
	}

	objPath := s.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(objPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}

	tmpPath := objPath + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create object file: %w", err)
	}

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(f, hash), body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write object: %w", err)
	}

	obj := &Object{
		Key:          key,
		Size:         size,
		LastModified: time.Now().UTC(),
		ETag:         hex.EncodeToString(hash.Sum(nil)),
		ContentType:  contentType,
		Metadata:     metadata,
	}

	metaJSON, err := json.Marshal(obj.Metadata)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to finalize object: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO objects (bucket, key, size, last_modified, etag, content_type, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, bucket, key, obj.Size, obj.LastModified, obj.ETag, obj.ContentType, string(metaJSON))
	if err != nil {
		// Keep the tree free of bodies with no metadata row.
		os.Remove(objPath)
		return nil, err
	}

	return obj, nil
}

// GetObject returns object metadata and an open reader for its body.
// The caller must close the reader.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (*Object, io.ReadCloser, error) {
	obj, err := s.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.objectPath(bucket, key))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open object file: %w", err)
	}

	return obj, f, nil
}

// HeadObject returns object metadata without the body.
func (s *Store) HeadObject(ctx context.Context, bucket, key string) (*Object, error) {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBucketNotFound
	}

	var obj Object
	var metaJSON string
	err = s.db.QueryRowContext(ctx, `
		SELECT key, size, last_modified, etag, content_type, metadata
		FROM objects WHERE bucket = ? AND key = ?
	`, bucket, key).Scan(&obj.Key, &obj.Size, &obj.LastModified, &obj.ETag, &obj.ContentType, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}

	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &obj.Metadata); err != nil {
			return nil, err
		}
	}

	return &obj, nil
}

// DeleteObject removes an object. Deleting an absent key is not an
// error, matching S3 delete semantics.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBucketNotFound
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key); err != nil {
		return err
	}

	if err := os.Remove(s.objectPath(bucket, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object file: %w", err)
	}
	return nil
}

// ListObjects returns objects in a bucket matching a prefix, ordered by
// key.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBucketNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, size, last_modified, etag, content_type, metadata
		FROM objects
		WHERE bucket = ? AND key LIKE ?
		ORDER BY key
	`, bucket, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var obj Object
		var metaJSON string
		if err := rows.Scan(&obj.Key, &obj.Size, &obj.LastModified, &obj.ETag, &obj.ContentType, &metaJSON); err != nil {
			return nil, err
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &obj.Metadata); err != nil {
				return nil, err
			}
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// Close closes the metadata database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) objectPath(bucket, key string) string {
	return filepath.Join(s.dataDir, bucket, filepath.FromSlash(key))
}
