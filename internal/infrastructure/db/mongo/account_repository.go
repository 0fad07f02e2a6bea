package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const collectionAccounts = "accounts"

// AccountRepository implements ports.AccountStore. The username is the _id;
// a lower-cased copy backs the case-insensitive uniqueness check.
type AccountRepository struct {
	col *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{col: db.Collection(collectionAccounts)}
}

type mongoAccount struct {
	Username      string               `bson:"_id"`
	UsernameLower string               `bson:"username_lower"`
	Password      string               `bson:"password"`
	DeviceCode    string               `bson:"device_code,omitempty"`
	Status        domain.AccountStatus `bson:"status"`
	CreatedAt     time.Time            `bson:"created_at"`
}

func toMongoAccount(a *domain.Account) mongoAccount {
	return mongoAccount{
		Username:      a.Username,
		UsernameLower: strings.ToLower(a.Username),
		Password:      a.Password,
		DeviceCode:    a.DeviceCode,
		Status:        a.Status,
		CreatedAt:     a.CreatedAt,
	}
}

func (m mongoAccount) toDomain() *domain.Account {
	return &domain.Account{
		Username:   m.Username,
		Password:   m.Password,
		DeviceCode: m.DeviceCode,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
	}
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m mongoAccount
	if err := r.col.FindOne(ctx, filter).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return m.toDomain(), nil
}

func (r *AccountRepository) Get(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": username})
}

func (r *AccountRepository) FindByUsernameFold(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"username_lower": strings.ToLower(username)})
}

func (r *AccountRepository) FindByDevice(ctx context.Context, code string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"device_code": code})
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	var docs []mongoAccount
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	out := make([]domain.Account, 0, len(docs))
	for _, m := range docs {
		out = append(out, *m.toDomain())
	}
	return out, nil
}

func (r *AccountRepository) Put(ctx context.Context, a *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": a.Username}, toMongoAccount(a), options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &domain.ValidationError{Field: "username", Reason: "already exists"}
		}
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Update(ctx context.Context, username string, u ports.AccountUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{}
	unset := bson.M{}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.Password != nil {
		set["password"] = *u.Password
	}
	switch {
	case u.ClearDevice:
		unset["device_code"] = ""
	case u.DeviceCode != nil:
		set["device_code"] = *u.DeviceCode
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		_, err := r.Get(ctx, username)
		return err
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": username}, update)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, username string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": username}); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Watch(ctx context.Context) (<-chan ports.AccountChange, error) {
	return watchCollection(ctx, r.col, func(username string, doc bson.Raw) (ports.AccountChange, error) {
		change := ports.AccountChange{Username: username}
		if doc == nil {
			return change, nil
		}
		var m mongoAccount
		if err := bson.Unmarshal(doc, &m); err != nil {
			return change, err
		}
		change.Account = m.toDomain()
		return change, nil
	})
}

// EnsureIndexes creates necessary indexes on the accounts collection.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "device_code", Value: 1}}, Options: options.Index().SetSparse(true)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
