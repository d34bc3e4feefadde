package user

// Profile is the subset of a marketplace user the gateway needs to enrich
// outbound message payloads.
type Profile struct {
	ID          string `bson:"_id" json:"id"`
	DisplayName string `bson:"display_name" json:"displayName"`
	Avatar      string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

func (Profile) TableName() string { return "users" }
