package project

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const memberCollection = "project_members"

// Member links a marketplace user to a project team.
type Member struct {
	ProjectID string `bson:"project_id" json:"projectId"`
	UserID    string `bson:"user_id" json:"userId"`
	Role      string `bson:"role,omitempty" json:"role,omitempty"`
	Status    string `bson:"status" json:"status"` // active | removed | invited
}

// MemberStore answers team-membership authorization queries.
type MemberStore struct {
	db *mongo.Database
}

func NewMemberStore(db *mongo.Database) *MemberStore {
	return &MemberStore{db: db}
}

// IsActiveMember reports whether userID currently belongs to the project's
// team with active status.
func (s *MemberStore) IsActiveMember(ctx context.Context, projectID, userID string) (bool, error) {
	n, err := s.db.Collection(memberCollection).CountDocuments(ctx, bson.M{
		"project_id": projectID,
		"user_id":    userID,
		"status":     "active",
	})
	if err != nil {
		return false, errors.Wrapf(err, "membership lookup project=%s user=%s", projectID, userID)
	}
	return n > 0, nil
}
