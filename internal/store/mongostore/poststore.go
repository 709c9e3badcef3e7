// Package mongostore keeps accounts and posts in MongoDB collections.
package mongostore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type claimDoc struct {
	NGOID   string    `bson:"ngo_id"`
	NGOName string    `bson:"ngo_name"`
	Phone   string    `bson:"phone"`
	Time    time.Time `bson:"time"`
}

type postDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	CanteenID   string             `bson:"canteen_id"`
	CanteenName string             `bson:"canteen_name"`
	Items       string             `bson:"items"`
	Portions    int                `bson:"portions"`
	ReadyBy     time.Time          `bson:"ready_by"`
	Location    string             `bson:"location"`
	Dietary     []string           `bson:"dietary"`
	Contact     string             `bson:"contact"`
	Notes       string             `bson:"notes,omitempty"`
	ClaimedBy   *claimDoc          `bson:"claimed_by"`
	Status      string             `bson:"status"`
	PhotoKey    string             `bson:"photo_key,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func toClaimDoc(c *types.Claim) *claimDoc {
	if c == nil {
		return nil
	}
	return &claimDoc{NGOID: c.NGOID, NGOName: c.NGOName, Phone: c.Phone, Time: c.Time.UTC()}
}

func (d postDoc) post() types.Post {
	post := types.Post{
		ID:          d.ID.Hex(),
		CanteenID:   d.CanteenID,
		CanteenName: d.CanteenName,
		Items:       d.Items,
		Portions:    d.Portions,
		ReadyBy:     d.ReadyBy,
		Location:    d.Location,
		Dietary:     d.Dietary,
		Contact:     d.Contact,
		Notes:       d.Notes,
		Status:      types.PostStatus(d.Status),
		PhotoKey:    d.PhotoKey,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if post.Dietary == nil {
		post.Dietary = []string{}
	}
	if d.ClaimedBy != nil {
		post.ClaimedBy = &types.Claim{
			NGOID:   d.ClaimedBy.NGOID,
			NGOName: d.ClaimedBy.NGOName,
			Phone:   d.ClaimedBy.Phone,
			Time:    d.ClaimedBy.Time,
		}
	}
	return post
}

type PostStore struct {
	c *mongo.Collection
}

func NewPostStore(db *mongo.Database) *PostStore {
	return &PostStore{c: db.Collection("posts")}
}

func (s *PostStore) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now().UTC()
	doc := postDoc{
		ID:          primitive.NewObjectID(),
		CanteenID:   post.CanteenID,
		CanteenName: post.CanteenName,
		Items:       post.Items,
		Portions:    post.Portions,
		ReadyBy:     post.ReadyBy.UTC(),
		Location:    post.Location,
		Dietary:     post.Dietary,
		Contact:     post.Contact,
		Notes:       post.Notes,
		ClaimedBy:   toClaimDoc(post.ClaimedBy),
		Status:      string(post.Status),
		PhotoKey:    post.PhotoKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		return types.Post{}, err
	}
	return doc.post(), nil
}

func (s *PostStore) Get(ctx context.Context, id string) (types.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Post{}, store.ErrNotFound
	}
	var doc postDoc
	if err := s.c.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Post{}, store.ErrNotFound
		}
		return types.Post{}, err
	}
	return doc.post(), nil
}

func (s *PostStore) List(ctx context.Context, filter types.PostFilter) ([]types.Post, error) {
	query := bson.M{}
	if status := filter.StatusFilter(); status != "" {
		query["status"] = string(status)
	}
	if tag := filter.DietaryFilter(); tag != "" {
		query["dietary"] = tag
	}
	if q := filter.QueryFilter(); q != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"canteen_name": pattern},
			bson.M{"items": pattern},
			bson.M{"location": pattern},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "ready_by", Value: 1}, {Key: "created_at", Value: 1}})
	cur, err := s.c.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []postDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	posts := make([]types.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, doc.post())
	}
	return posts, nil
}

// Transition applies the status change with FindOneAndUpdate keyed on the
// expected status, so only one of several concurrent callers wins.
func (s *PostStore) Transition(ctx context.Context, id string, from, to types.PostStatus, claim *types.Claim) (types.Post, error) {
	set := bson.M{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if claim != nil {
		set["claimed_by"] = toClaimDoc(claim)
	}
	return s.conditionalUpdate(ctx, id, from, set)
}

// SetPhoto records the photo key of a post that is still open.
func (s *PostStore) SetPhoto(ctx context.Context, id, key string) (types.Post, error) {
	return s.conditionalUpdate(ctx, id, types.PostStatusOpen, bson.M{
		"photo_key":  key,
		"updated_at": time.Now().UTC(),
	})
}

func (s *PostStore) conditionalUpdate(ctx context.Context, id string, from types.PostStatus, set bson.M) (types.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Post{}, store.ErrNotFound
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc postDoc
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": oid, "status": string(from)}, bson.M{"$set": set}, opts).Decode(&doc)
	if err == nil {
		return doc.post(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return types.Post{}, err
	}
	if err := s.c.FindOne(ctx, bson.M{"_id": oid}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Post{}, store.ErrNotFound
		}
		return types.Post{}, err
	}
	return types.Post{}, store.ErrConflict
}

// ExpireOverdue expires open posts one document at a time so every
// returned post is one this call actually transitioned.
func (s *PostStore) ExpireOverdue(ctx context.Context, now time.Time) ([]types.Post, error) {
	filter := bson.M{
		"status":   string(types.PostStatusOpen),
		"ready_by": bson.M{"$lt": now.UTC()},
	}
	update := bson.M{"$set": bson.M{
		"status":     string(types.PostStatusExpired),
		"updated_at": now.UTC(),
	}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "ready_by", Value: 1}})

	var expired []types.Post
	for {
		var doc postDoc
		err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return expired, nil
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, doc.post())
	}
}

func (s *PostStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
