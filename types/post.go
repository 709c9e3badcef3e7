package types

import (
	"slices"
	"strings"
	"time"
)

// PostStatus is the lifecycle state of a Post.
type PostStatus string

const (
	PostStatusOpen      PostStatus = "open"
	PostStatusClaimed   PostStatus = "claimed"
	PostStatusCompleted PostStatus = "completed"
	PostStatusExpired   PostStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusOpen, PostStatusClaimed, PostStatusCompleted, PostStatusExpired:
		return true
	}
	return false
}

// HasClaim reports whether a post in this status must carry a claim record.
func (s PostStatus) HasClaim() bool {
	return s == PostStatusClaimed || s == PostStatusCompleted
}

// Post represents a surplus-food offer published by a canteen.
// NGOs claim open posts and the owning canteen marks them completed once
// the food has been picked up.
type Post struct {
	// ID is the unique identifier of the post.
	ID string `json:"id" db:"id"`

	// CanteenID references the account that owns the post.
	CanteenID string `json:"canteen_id" db:"canteen_id"`

	// CanteenName is the display name captured when the post was created.
	// It is a snapshot and is not refreshed when the account changes.
	CanteenName string `json:"canteen_name" db:"canteen_name"`

	// Items is a free-text description of the food on offer.
	Items string `json:"items" db:"items"`

	// Portions is the number of portions available. Always positive.
	Portions int `json:"portions" db:"portions"`

	// ReadyBy is when the food is ready for pickup.
	ReadyBy time.Time `json:"ready_by" db:"ready_by"`

	// Location is the pickup location.
	Location string `json:"location" db:"location"`

	// Dietary holds free-form dietary tags such as "veg" or "halal".
	Dietary []string `json:"dietary" db:"dietary"`

	// Contact is how an NGO reaches the canteen about this post.
	Contact string `json:"contact" db:"contact"`

	// Notes are optional pickup instructions.
	Notes string `json:"notes,omitempty" db:"notes"`

	// ClaimedBy is set once an NGO claims the post and kept after completion.
	ClaimedBy *Claim `json:"claimed_by" db:"claimed_by"`

	// Status is the lifecycle state of the post.
	Status PostStatus `json:"status" db:"status"`

	// PhotoKey is the object storage key of the post photo, if any.
	PhotoKey string `json:"photo_key,omitempty" db:"photo_key"`

	// CreatedAt is the timestamp at which the post was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent change to the post.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Claim records which NGO committed to picking up a post.
type Claim struct {
	NGOID   string    `json:"ngo_id" db:"ngo_id"`
	NGOName string    `json:"ngo_name" db:"ngo_name"`
	Phone   string    `json:"phone" db:"phone"`
	Time    time.Time `json:"time" db:"time"`
}

// PostFilter selects posts for listing. Zero values match everything.
type PostFilter struct {
	// Status matches exactly; empty or "all" disables the filter.
	Status string

	// Dietary requires the tag to be present on the post.
	Dietary string

	// Query is matched case-insensitively as a substring of the canteen
	// name, the items or the location.
	Query string
}

// StatusFilter returns the status to match, or "" when all statuses match.
func (f PostFilter) StatusFilter() PostStatus {
	status := strings.ToLower(strings.TrimSpace(f.Status))
	if status == "" || status == "all" {
		return ""
	}
	return PostStatus(status)
}

// DietaryFilter returns the normalized dietary tag, or "" when unset.
func (f PostFilter) DietaryFilter() string {
	tag := strings.ToLower(strings.TrimSpace(f.Dietary))
	if tag == "all" {
		return ""
	}
	return tag
}

// QueryFilter returns the lower-cased free-text query.
func (f PostFilter) QueryFilter() string {
	return strings.ToLower(strings.TrimSpace(f.Query))
}

// Matches reports whether the post satisfies the filter.
func (f PostFilter) Matches(post Post) bool {
	if status := f.StatusFilter(); status != "" && post.Status != status {
		return false
	}
	if tag := f.DietaryFilter(); tag != "" && !slices.Contains(post.Dietary, tag) {
		return false
	}
	q := f.QueryFilter()
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(post.CanteenName), q) ||
		strings.Contains(strings.ToLower(post.Items), q) ||
		strings.Contains(strings.ToLower(post.Location), q)
}

// SortByReadyBy orders posts ascending by ReadyBy, oldest creation first on ties.
func SortByReadyBy(posts []Post) {
	slices.SortStableFunc(posts, func(a, b Post) int {
		if c := a.ReadyBy.Compare(b.ReadyBy); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// PostEventType names the change carried by a PostEvent.
type PostEventType string

const (
	PostEventCreated       PostEventType = "created"
	PostEventClaimed       PostEventType = "claimed"
	PostEventCompleted     PostEventType = "completed"
	PostEventExpired       PostEventType = "expired"
	PostEventDeleted       PostEventType = "deleted"
	PostEventPhotoAttached PostEventType = "photo_attached"
)

// PostEvent is published after every successful post mutation.
type PostEvent struct {
	Type   PostEventType `json:"type"`
	PostID string        `json:"post_id"`
	// Post is the state after the change; nil for deletions.
	Post *Post     `json:"post,omitempty"`
	At   time.Time `json:"at"`
}
