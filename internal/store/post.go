package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foodshare/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const postColumns = `id, canteen_id, canteen_name, items, portions, ready_by, location, dietary,
		contact, notes, claim, status, photo_key, created_at, updated_at`

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (types.Post, error) {
	var post types.Post
	var claimJSON []byte
	var status string
	if err := row.Scan(
		&post.ID,
		&post.CanteenID,
		&post.CanteenName,
		&post.Items,
		&post.Portions,
		&post.ReadyBy,
		&post.Location,
		pq.Array(&post.Dietary),
		&post.Contact,
		&post.Notes,
		&claimJSON,
		&status,
		&post.PhotoKey,
		&post.CreatedAt,
		&post.UpdatedAt,
	); err != nil {
		return types.Post{}, err
	}
	post.Status = types.PostStatus(status)
	if len(claimJSON) > 0 {
		var claim types.Claim
		if err := json.Unmarshal(claimJSON, &claim); err != nil {
			return types.Post{}, fmt.Errorf("decode claim: %w", err)
		}
		post.ClaimedBy = &claim
	}
	if post.Dietary == nil {
		post.Dietary = []string{}
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now().UTC()
	post.ID = uuid.NewString()
	post.CreatedAt = now
	post.UpdatedAt = now

	claimJSON, err := marshalClaim(post.ClaimedBy)
	if err != nil {
		return types.Post{}, err
	}

	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		post.ID,
		post.CanteenID,
		post.CanteenName,
		post.Items,
		post.Portions,
		post.ReadyBy,
		post.Location,
		pq.Array(post.Dietary),
		post.Contact,
		post.Notes,
		claimJSON,
		string(post.Status),
		post.PhotoKey,
		post.CreatedAt,
		post.UpdatedAt,
	); err != nil {
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Get(ctx context.Context, id string) (types.Post, error) {
	if !validID(id) {
		return types.Post{}, ErrNotFound
	}
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) List(ctx context.Context, filter types.PostFilter) ([]types.Post, error) {
	var (
		conds []string
		args  []any
	)
	if status := filter.StatusFilter(); status != "" {
		args = append(args, string(status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if tag := filter.DietaryFilter(); tag != "" {
		args = append(args, tag)
		conds = append(conds, fmt.Sprintf("$%d = ANY(dietary)", len(args)))
	}
	if q := filter.QueryFilter(); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(canteen_name ILIKE $%d OR items ILIKE $%d OR location ILIKE $%d)", n, n, n))
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY ready_by ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

// Transition moves a post from one status to another in a single
// conditional UPDATE. A non-nil claim replaces the stored claim record;
// nil keeps it. ErrConflict means the post exists but was not in from.
func (r *PostRepository) Transition(ctx context.Context, id string, from, to types.PostStatus, claim *types.Claim) (types.Post, error) {
	if !validID(id) {
		return types.Post{}, ErrNotFound
	}
	claimJSON, err := marshalClaim(claim)
	if err != nil {
		return types.Post{}, err
	}

	query := `
		UPDATE posts
		SET status = $3,
			claim = COALESCE($4::jsonb, claim),
			updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING ` + postColumns
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id, string(from), string(to), claimJSON, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, r.missOrConflict(ctx, id)
		}
		return types.Post{}, err
	}
	return post, nil
}

// SetPhoto records the photo key of a post that is still open.
func (r *PostRepository) SetPhoto(ctx context.Context, id, key string) (types.Post, error) {
	if !validID(id) {
		return types.Post{}, ErrNotFound
	}
	query := `
		UPDATE posts
		SET photo_key = $2,
			updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + postColumns
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id, key, time.Now().UTC(), string(types.PostStatusOpen)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, r.missOrConflict(ctx, id)
		}
		return types.Post{}, err
	}
	return post, nil
}

// ExpireOverdue marks every open post whose ready-by time is before now as
// expired and returns the updated posts.
func (r *PostRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]types.Post, error) {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = $2
		WHERE status = $3 AND ready_by < $2
		RETURNING ` + postColumns
	rows, err := r.db.QueryContext(ctx, query, string(types.PostStatusExpired), now.UTC(), string(types.PostStatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []types.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	types.SortByReadyBy(expired)
	return expired, nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	const query = `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostRepository) missOrConflict(ctx context.Context, id string) error {
	const query = `SELECT 1 FROM posts WHERE id = $1`
	var one int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

// marshalClaim returns the JSON text of claim, or nil so the driver sends NULL.
func marshalClaim(claim *types.Claim) (any, error) {
	if claim == nil {
		return nil, nil
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
