package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// accountDoc stores the profile variant as one of two optional subdocuments.
type accountDoc struct {
	ID            primitive.ObjectID    `bson:"_id"`
	Email         string                `bson:"email"`
	Role          string                `bson:"role"`
	ContactPerson string                `bson:"contact_person"`
	Phone         string                `bson:"phone"`
	Address       types.Address         `bson:"address"`
	NGO           *types.NGOProfile     `bson:"ngo,omitempty"`
	Canteen       *types.CanteenProfile `bson:"canteen,omitempty"`
	PasswordHash  string                `bson:"password_hash"`
	CreatedAt     time.Time             `bson:"created_at"`
	UpdatedAt     time.Time             `bson:"updated_at"`
}

func (d accountDoc) account() (types.Account, error) {
	account := types.Account{
		ID:            d.ID.Hex(),
		Email:         d.Email,
		ContactPerson: d.ContactPerson,
		Phone:         d.Phone,
		Address:       d.Address,
		PasswordHash:  d.PasswordHash,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	switch {
	case d.Role == string(types.RoleNGO) && d.NGO != nil:
		account.Profile = *d.NGO
	case d.Role == string(types.RoleCanteen) && d.Canteen != nil:
		account.Profile = *d.Canteen
	default:
		return types.Account{}, errors.New("account document has no profile for role " + d.Role)
	}
	return account, nil
}

type AccountStore struct {
	c *mongo.Collection
}

func NewAccountStore(db *mongo.Database) *AccountStore {
	return &AccountStore{c: db.Collection("accounts")}
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (types.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Account{}, store.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *AccountStore) findOne(ctx context.Context, filter bson.M) (types.Account, error) {
	var doc accountDoc
	if err := s.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, store.ErrNotFound
		}
		return types.Account{}, err
	}
	return doc.account()
}

func (s *AccountStore) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now().UTC()
	doc := accountDoc{
		ID:            primitive.NewObjectID(),
		Email:         strings.ToLower(strings.TrimSpace(account.Email)),
		Role:          string(account.Role()),
		ContactPerson: account.ContactPerson,
		Phone:         account.Phone,
		Address:       account.Address,
		PasswordHash:  account.PasswordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch p := account.Profile.(type) {
	case types.NGOProfile:
		doc.NGO = &p
	case types.CanteenProfile:
		doc.Canteen = &p
	default:
		return types.Account{}, errors.New("account profile is required")
	}

	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Account{}, store.ErrDuplicate
		}
		return types.Account{}, err
	}
	return doc.account()
}
