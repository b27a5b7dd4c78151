package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema/postgres.sql
var postgresSchema string

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates every table the server uses, including the api_keys
// and generation_logs tables read by auth and billing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, post *Post) error {
	query := `
		INSERT INTO posts (title, content, post_type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query, post.Title, post.Content, post.Type, post.Status).
		Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	query := `
		SELECT id, title, content, post_type, status, COALESCE(thumbnail_id, 0), created_at
		FROM posts
		WHERE id = $1
	`
	var p Post
	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Content, &p.Type, &p.Status, &p.ThumbnailID, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) FindTerm(ctx context.Context, taxonomy Taxonomy, name string) (*Term, error) {
	return s.findTerm(ctx, `WHERE taxonomy = $1 AND name = $2`, taxonomy, name)
}

func (s *PostgresStore) FindTermBySlug(ctx context.Context, taxonomy Taxonomy, slug string) (*Term, error) {
	return s.findTerm(ctx, `WHERE taxonomy = $1 AND slug = $2`, taxonomy, slug)
}

func (s *PostgresStore) findTerm(ctx context.Context, where string, args ...any) (*Term, error) {
	query := `SELECT id, taxonomy, name, slug, description FROM terms ` + where
	var t Term
	err := s.db.QueryRow(ctx, query, args...).Scan(&t.ID, &t.Taxonomy, &t.Name, &t.Slug, &t.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find term: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateTerm(ctx context.Context, term *Term) error {
	query := `
		INSERT INTO terms (taxonomy, name, slug, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
		RETURNING id
	`
	err := s.db.QueryRow(ctx, query, term.Taxonomy, term.Name, term.Slug, term.Description).Scan(&term.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create term: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddPostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error {
	query := `
		INSERT INTO post_terms (post_id, term_id, taxonomy)
		SELECT $1, unnest($2::bigint[]), $3
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query, postID, termIDs, taxonomy); err != nil {
		return fmt.Errorf("failed to assign terms: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemovePostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error {
	query := `DELETE FROM post_terms WHERE post_id = $1 AND taxonomy = $2 AND term_id = ANY($3)`
	if _, err := s.db.Exec(ctx, query, postID, taxonomy, termIDs); err != nil {
		return fmt.Errorf("failed to remove terms: %w", err)
	}
	return nil
}

func (s *PostgresStore) PostTerms(ctx context.Context, postID int64, taxonomy Taxonomy) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT term_id FROM post_terms WHERE post_id = $1 AND taxonomy = $2 ORDER BY term_id`,
		postID, taxonomy)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post terms: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) AttachMedia(ctx context.Context, m *Media) error {
	query := `
		INSERT INTO media (post_id, file_name, mime_type, storage_key, url, width, height, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		m.PostID, m.FileName, m.MimeType, m.Key, m.URL, m.Width, m.Height, m.Size,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to attach media: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetThumbnail(ctx context.Context, postID, mediaID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE posts SET thumbnail_id = $2 WHERE id = $1`, postID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
