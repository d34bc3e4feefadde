package user

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store resolves user profiles for outbound payload enrichment.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// FindByID returns the profile or (nil, nil) when the user does not exist.
func (s *Store) FindByID(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := s.db.Collection(Profile{}.TableName()).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find user %s", id)
	}
	return &p, nil
}
