package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPost(readyBy time.Time, items string) types.Post {
	return types.Post{
		CanteenID:   "canteen-1",
		CanteenName: "North Block Canteen",
		Items:       items,
		Portions:    10,
		ReadyBy:     readyBy,
		Location:    "Gate 3",
		Dietary:     []string{"veg"},
		Contact:     "+91-100",
		Status:      types.PostStatusOpen,
	}
}

func TestPostStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewPostStore()

	created, err := s.Create(ctx, newPost(time.Now().Add(time.Hour), "Rice"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	require.NoError(t, s.Delete(ctx, created.ID))
	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, created.ID), store.ErrNotFound)
}

func TestPostStore_ReturnedPostsAreDetached(t *testing.T) {
	ctx := context.Background()
	s := NewPostStore()

	created, err := s.Create(ctx, newPost(time.Now().Add(time.Hour), "Rice"))
	require.NoError(t, err)
	created.Dietary[0] = "mutated"

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"veg"}, got.Dietary)
}

func TestPostStore_TransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewPostStore()
	created, err := s.Create(ctx, newPost(time.Now().Add(time.Hour), "Rice"))
	require.NoError(t, err)

	claim := &types.Claim{NGOID: "ngo-1", NGOName: "Helping Hands", Phone: "+91-555", Time: time.Now()}
	claimed, err := s.Transition(ctx, created.ID, types.PostStatusOpen, types.PostStatusClaimed, claim)
	require.NoError(t, err)
	assert.Equal(t, types.PostStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, "Helping Hands", claimed.ClaimedBy.NGOName)

	_, err = s.Transition(ctx, created.ID, types.PostStatusOpen, types.PostStatusClaimed, claim)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Transition(ctx, "missing", types.PostStatusOpen, types.PostStatusClaimed, claim)
	assert.ErrorIs(t, err, store.ErrNotFound)

	completed, err := s.Transition(ctx, created.ID, types.PostStatusClaimed, types.PostStatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, types.PostStatusCompleted, completed.Status)
	assert.NotNil(t, completed.ClaimedBy)
}

func TestPostStore_ListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	s := NewPostStore()
	base := time.Now()

	late, _ := s.Create(ctx, newPost(base.Add(3*time.Hour), "Biryani"))
	early, _ := s.Create(ctx, newPost(base.Add(time.Hour), "Rice, Dal"))
	vegan := newPost(base.Add(2*time.Hour), "Fruit")
	vegan.Dietary = []string{"vegan"}
	vegan.Location = "Library"
	_, _ = s.Create(ctx, vegan)
	_, err := s.Transition(ctx, late.ID, types.PostStatusOpen, types.PostStatusClaimed, &types.Claim{NGOID: "n"})
	require.NoError(t, err)

	all, err := s.List(ctx, types.PostFilter{Status: "all"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, early.ID, all[0].ID)
	assert.Equal(t, late.ID, all[2].ID)

	open, err := s.List(ctx, types.PostFilter{Status: "open", Dietary: "VEG"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, early.ID, open[0].ID)

	byQuery, err := s.List(ctx, types.PostFilter{Query: "libr"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, "Fruit", byQuery[0].Items)
}

func TestPostStore_ExpireOverdue(t *testing.T) {
	ctx := context.Background()
	s := NewPostStore()
	now := time.Now()

	overdue, _ := s.Create(ctx, newPost(now.Add(-time.Minute), "Old rice"))
	future, _ := s.Create(ctx, newPost(now.Add(time.Hour), "Fresh rice"))
	claimedOverdue, _ := s.Create(ctx, newPost(now.Add(-time.Hour), "Claimed"))
	_, err := s.Transition(ctx, claimedOverdue.ID, types.PostStatusOpen, types.PostStatusClaimed, &types.Claim{NGOID: "n"})
	require.NoError(t, err)

	expired, err := s.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, overdue.ID, expired[0].ID)
	assert.Equal(t, types.PostStatusExpired, expired[0].Status)

	got, _ := s.Get(ctx, future.ID)
	assert.Equal(t, types.PostStatusOpen, got.Status)

	again, err := s.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestAccountStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore()
	account := types.Account{Email: "Kitchen@Example.com", Profile: types.CanteenProfile{CanteenName: "K"}}

	created, err := s.Create(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "kitchen@example.com", created.Email)

	_, err = s.Create(ctx, account)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.GetByEmail(ctx, " KITCHEN@example.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}
