package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/types"
	"go.uber.org/zap"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Get(ctx context.Context, id string) (types.Post, error)
	List(ctx context.Context, filter types.PostFilter) ([]types.Post, error)
	// Transition must apply the change only while the post is in from,
	// returning store.ErrConflict otherwise.
	Transition(ctx context.Context, id string, from, to types.PostStatus, claim *types.Claim) (types.Post, error)
	SetPhoto(ctx context.Context, id, key string) (types.Post, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]types.Post, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher receives an event after every committed post mutation.
type EventPublisher interface {
	Publish(ctx context.Context, event types.PostEvent) error
}

// PostService is the post lifecycle engine. Every role, ownership and
// state check for posts happens here, whichever store backs it.
type PostService struct {
	repo   PostRepository
	events EventPublisher
	photos PhotoStorage
	log    *zap.Logger
	now    func() time.Time
}

// PostServiceOption configures a PostService.
type PostServiceOption func(*PostService)

// WithEvents publishes post events to p.
func WithEvents(p EventPublisher) PostServiceOption {
	return func(s *PostService) { s.events = p }
}

// WithPhotos enables photo attachments backed by st.
func WithPhotos(st PhotoStorage) PostServiceOption {
	return func(s *PostService) { s.photos = st }
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(log *zap.Logger) PostServiceOption {
	return func(s *PostService) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) PostServiceOption {
	return func(s *PostService) { s.now = now }
}

func NewPostService(repo PostRepository, opts ...PostServiceOption) *PostService {
	s := &PostService{
		repo: repo,
		log:  zap.NewNop(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PostInput carries the canteen-supplied fields of a new post.
type PostInput struct {
	CanteenName string
	Items       string
	Portions    int
	ReadyBy     time.Time
	Location    string
	Dietary     []string
	Contact     string
	Notes       string
}

// ClaimInput carries the NGO-supplied fields of a claim.
type ClaimInput struct {
	NGOName string
	Phone   string
}

func (in PostInput) normalize() PostInput {
	in.CanteenName = strings.TrimSpace(in.CanteenName)
	in.Items = strings.TrimSpace(in.Items)
	in.Location = strings.TrimSpace(in.Location)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Notes = strings.TrimSpace(in.Notes)
	in.Dietary = normalizeTags(in.Dietary)
	return in
}

func (in PostInput) validate(now time.Time) error {
	var fields []string
	if in.CanteenName == "" {
		fields = append(fields, "canteen_name")
	}
	if in.Items == "" {
		fields = append(fields, "items")
	}
	if in.Portions <= 0 {
		fields = append(fields, "portions")
	}
	if in.ReadyBy.IsZero() {
		fields = append(fields, "ready_by")
	}
	if in.Location == "" {
		fields = append(fields, "location")
	}
	if in.Contact == "" {
		fields = append(fields, "contact")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if in.ReadyBy.Before(now) {
		return invalid("ready_by must not be in the past", "ready_by")
	}
	return nil
}

// normalizeTags lower-cases and trims tags, dropping empties and duplicates
// while keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// CreatePost publishes a new open post owned by the calling canteen.
func (s *PostService) CreatePost(ctx context.Context, principal types.Principal, in PostInput) (types.Post, error) {
	if principal.Role != types.RoleCanteen {
		return types.Post{}, ErrForbidden
	}
	in = in.normalize()
	if err := in.validate(s.now()); err != nil {
		return types.Post{}, err
	}

	created, err := s.repo.Create(ctx, types.Post{
		CanteenID:   principal.ID,
		CanteenName: in.CanteenName,
		Items:       in.Items,
		Portions:    in.Portions,
		ReadyBy:     in.ReadyBy.UTC(),
		Location:    in.Location,
		Dietary:     in.Dietary,
		Contact:     in.Contact,
		Notes:       in.Notes,
		Status:      types.PostStatusOpen,
	})
	if err != nil {
		return types.Post{}, fmt.Errorf("create post: %w", err)
	}
	s.publish(ctx, types.PostEventCreated, created.ID, &created)
	return created, nil
}

// GetPost fetches a post by id.
func (s *PostService) GetPost(ctx context.Context, id string) (types.Post, error) {
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Post{}, translate(err, "get post")
	}
	return post, nil
}

// ListPosts returns the posts matching filter, soonest ready-by first.
func (s *PostService) ListPosts(ctx context.Context, filter types.PostFilter) ([]types.Post, error) {
	posts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// ClaimPost records the calling NGO's claim on an open post. Of several
// concurrent claims exactly one succeeds; the others get ErrConflict.
func (s *PostService) ClaimPost(ctx context.Context, principal types.Principal, postID string, in ClaimInput) (types.Post, error) {
	if principal.Role != types.RoleNGO {
		return types.Post{}, ErrForbidden
	}

	post, err := s.repo.Get(ctx, postID)
	if err != nil {
		return types.Post{}, translate(err, "claim post")
	}
	if post.Status != types.PostStatusOpen {
		return types.Post{}, ErrNotFound
	}

	in.NGOName = strings.TrimSpace(in.NGOName)
	in.Phone = strings.TrimSpace(in.Phone)
	var fields []string
	if in.NGOName == "" {
		fields = append(fields, "ngo_name")
	}
	if in.Phone == "" {
		fields = append(fields, "phone")
	}
	if len(fields) > 0 {
		return types.Post{}, &ValidationError{Fields: fields}
	}

	claim := &types.Claim{
		NGOID:   principal.ID,
		NGOName: in.NGOName,
		Phone:   in.Phone,
		Time:    s.now(),
	}
	claimed, err := s.repo.Transition(ctx, postID, types.PostStatusOpen, types.PostStatusClaimed, claim)
	if err != nil {
		return types.Post{}, translate(err, "claim post")
	}
	s.publish(ctx, types.PostEventClaimed, claimed.ID, &claimed)
	return claimed, nil
}

// CompletePost marks a claimed post as picked up. Only the owning canteen
// may do this; the claim record is kept.
func (s *PostService) CompletePost(ctx context.Context, principal types.Principal, postID string) (types.Post, error) {
	post, err := s.ownedPost(ctx, principal, postID, "complete post")
	if err != nil {
		return types.Post{}, err
	}
	if post.Status != types.PostStatusClaimed {
		return types.Post{}, ErrNotFound
	}

	completed, err := s.repo.Transition(ctx, postID, types.PostStatusClaimed, types.PostStatusCompleted, nil)
	if err != nil {
		return types.Post{}, translate(err, "complete post")
	}
	s.publish(ctx, types.PostEventCompleted, completed.ID, &completed)
	return completed, nil
}

// DeletePost removes a post in any status. Only the owning canteen may do this.
func (s *PostService) DeletePost(ctx context.Context, principal types.Principal, postID string) error {
	post, err := s.ownedPost(ctx, principal, postID, "delete post")
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, postID); err != nil {
		return translate(err, "delete post")
	}
	if post.PhotoKey != "" && s.photos != nil {
		if err := s.photos.Delete(ctx, post.PhotoKey); err != nil {
			s.log.Warn("failed to remove photo of deleted post",
				zap.String("post_id", postID), zap.String("key", post.PhotoKey), zap.Error(err))
		}
	}
	s.publish(ctx, types.PostEventDeleted, postID, nil)
	return nil
}

// ExpireOverdue moves every open post whose ready-by time has passed to
// expired and returns those posts.
func (s *PostService) ExpireOverdue(ctx context.Context) ([]types.Post, error) {
	// a store may report a partial set alongside an error; those posts did
	// transition and live views still need to hear about them
	expired, err := s.repo.ExpireOverdue(ctx, s.now())
	for i := range expired {
		s.publish(ctx, types.PostEventExpired, expired[i].ID, &expired[i])
	}
	if err != nil {
		return expired, fmt.Errorf("expire posts: %w", err)
	}
	return expired, nil
}

// ownedPost loads a post for a mutation reserved to its owning canteen.
func (s *PostService) ownedPost(ctx context.Context, principal types.Principal, postID, op string) (types.Post, error) {
	if principal.Role != types.RoleCanteen {
		return types.Post{}, ErrForbidden
	}
	post, err := s.repo.Get(ctx, postID)
	if err != nil {
		return types.Post{}, translate(err, op)
	}
	if post.CanteenID != principal.ID {
		return types.Post{}, ErrForbidden
	}
	return post, nil
}

func (s *PostService) publish(ctx context.Context, typ types.PostEventType, postID string, post *types.Post) {
	if s.events == nil {
		return
	}
	event := types.PostEvent{Type: typ, PostID: postID, Post: post, At: s.now()}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish post event",
			zap.String("type", string(typ)), zap.String("post_id", postID), zap.Error(err))
	}
}

// translate maps store sentinels onto service errors.
func translate(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
