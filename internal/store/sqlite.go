package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore backs the local runner. It shares the Store contract with the
// Postgres store so the generator cannot tell them apart.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" in tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("sqlite: parent directory %q does not exist", dir)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePost(ctx context.Context, post *Post) error {
	post.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO posts (title, content, post_type, status, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		post.Title, post.Content, post.Type, post.Status, post.CreatedAt,
	).Scan(&post.ID)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	var p Post
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, post_type, status, COALESCE(thumbnail_id, 0), created_at FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.Type, &p.Status, &p.ThumbnailID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) FindTerm(ctx context.Context, taxonomy Taxonomy, name string) (*Term, error) {
	return s.findTerm(ctx, `WHERE taxonomy = ? AND name = ?`, taxonomy, name)
}

func (s *SQLiteStore) FindTermBySlug(ctx context.Context, taxonomy Taxonomy, slug string) (*Term, error) {
	return s.findTerm(ctx, `WHERE taxonomy = ? AND slug = ?`, taxonomy, slug)
}

func (s *SQLiteStore) findTerm(ctx context.Context, where string, args ...any) (*Term, error) {
	var t Term
	err := s.db.QueryRowContext(ctx, `SELECT id, taxonomy, name, slug, description FROM terms `+where, args...).
		Scan(&t.ID, &t.Taxonomy, &t.Name, &t.Slug, &t.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find term: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) CreateTerm(ctx context.Context, term *Term) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO terms (taxonomy, name, slug, description) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING RETURNING id`,
		term.Taxonomy, term.Name, term.Slug, term.Description,
	).Scan(&term.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create term: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddPostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error {
	for _, id := range termIDs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO post_terms (post_id, term_id, taxonomy) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			postID, id, taxonomy)
		if err != nil {
			return fmt.Errorf("failed to assign terms: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) RemovePostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error {
	if len(termIDs) == 0 {
		return nil
	}
	args := []any{postID, taxonomy}
	for _, id := range termIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(termIDs)), ",")
	query := `DELETE FROM post_terms WHERE post_id = ? AND taxonomy = ? AND term_id IN (` + placeholders + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove terms: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PostTerms(ctx context.Context, postID int64, taxonomy Taxonomy) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term_id FROM post_terms WHERE post_id = ? AND taxonomy = ? ORDER BY term_id`, postID, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to query post terms: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post term: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) AttachMedia(ctx context.Context, m *Media) error {
	m.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO media (post_id, file_name, mime_type, storage_key, url, width, height, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		m.PostID, m.FileName, m.MimeType, m.Key, m.URL, m.Width, m.Height, m.Size, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to attach media: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetThumbnail(ctx context.Context, postID, mediaID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET thumbnail_id = ? WHERE id = ?`, mediaID, postID)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
