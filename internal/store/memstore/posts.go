// Package memstore keeps accounts and posts in process memory. It backs the
// "memory" store backend and the unit tests.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/types"
	"github.com/google/uuid"
)

type PostStore struct {
	mu    sync.RWMutex
	posts map[string]types.Post
	now   func() time.Time
}

func NewPostStore() *PostStore {
	return &PostStore{
		posts: make(map[string]types.Post),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// clonePost detaches slices and pointers so callers cannot mutate stored state.
func clonePost(p types.Post) types.Post {
	p.Dietary = slices.Clone(p.Dietary)
	if p.Dietary == nil {
		p.Dietary = []string{}
	}
	if p.ClaimedBy != nil {
		c := *p.ClaimedBy
		p.ClaimedBy = &c
	}
	return p
}

func (s *PostStore) Create(ctx context.Context, post types.Post) (types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	post.ID = uuid.NewString()
	post.CreatedAt = now
	post.UpdatedAt = now
	s.posts[post.ID] = clonePost(post)
	return clonePost(post), nil
}

func (s *PostStore) Get(ctx context.Context, id string) (types.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	return clonePost(post), nil
}

func (s *PostStore) List(ctx context.Context, filter types.PostFilter) ([]types.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Post, 0, len(s.posts))
	for _, post := range s.posts {
		if filter.Matches(post) {
			out = append(out, clonePost(post))
		}
	}
	types.SortByReadyBy(out)
	return out, nil
}

func (s *PostStore) Transition(ctx context.Context, id string, from, to types.PostStatus, claim *types.Claim) (types.Post, error) {
	return s.update(id, from, func(p *types.Post) {
		p.Status = to
		if claim != nil {
			c := *claim
			p.ClaimedBy = &c
		}
	})
}

func (s *PostStore) SetPhoto(ctx context.Context, id, key string) (types.Post, error) {
	return s.update(id, types.PostStatusOpen, func(p *types.Post) {
		p.PhotoKey = key
	})
}

func (s *PostStore) update(id string, from types.PostStatus, apply func(*types.Post)) (types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	if post.Status != from {
		return types.Post{}, store.ErrConflict
	}
	apply(&post)
	post.UpdatedAt = s.now()
	s.posts[id] = post
	return clonePost(post), nil
}

func (s *PostStore) ExpireOverdue(ctx context.Context, now time.Time) ([]types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []types.Post
	for id, post := range s.posts {
		if post.Status != types.PostStatusOpen || !post.ReadyBy.Before(now) {
			continue
		}
		post.Status = types.PostStatusExpired
		post.UpdatedAt = now
		s.posts[id] = post
		expired = append(expired, clonePost(post))
	}
	types.SortByReadyBy(expired)
	return expired, nil
}

func (s *PostStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}
