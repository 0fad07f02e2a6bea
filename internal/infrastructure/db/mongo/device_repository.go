package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

const collectionDevices = "devices"

// DeviceRepository implements ports.DeviceStore. Documents are keyed by the
// device code in _id.
type DeviceRepository struct {
	col *mongo.Collection
}

func NewDeviceRepository(db *mongo.Database) *DeviceRepository {
	return &DeviceRepository{col: db.Collection(collectionDevices)}
}

func (r *DeviceRepository) Get(ctx context.Context, code string) (*domain.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d domain.Device
	if err := r.col.FindOne(ctx, bson.M{"_id": code}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find device: %w", err)
	}
	return &d, nil
}

func (r *DeviceRepository) List(ctx context.Context) ([]domain.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var out []domain.Device
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return out, nil
}

// Put replaces the whole document, inserting it when missing.
func (r *DeviceRepository) Put(ctx context.Context, d *domain.Device) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": d.Code}, d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put device: %w", err)
	}
	return nil
}

// Update merges u into the document with $set / $unset.
func (r *DeviceRepository) Update(ctx context.Context, code string, u ports.DeviceUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{}
	unset := bson.M{}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	switch {
	case u.ClearLink:
		unset["linked_account"] = ""
	case u.Link != nil:
		set["linked_account"] = u.Link
	}
	updatedAt := u.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	set["updated_at"] = updatedAt

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": code}, update)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) Delete(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": code}); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}

func (r *DeviceRepository) Watch(ctx context.Context) (<-chan ports.DeviceChange, error) {
	return watchCollection(ctx, r.col, func(code string, doc bson.Raw) (ports.DeviceChange, error) {
		change := ports.DeviceChange{Code: code}
		if doc == nil {
			return change, nil
		}
		var d domain.Device
		if err := bson.Unmarshal(doc, &d); err != nil {
			return change, err
		}
		change.Device = &d
		return change, nil
	})
}

// EnsureIndexes creates necessary indexes on the devices collection.
func (r *DeviceRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "linked_account.username", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
