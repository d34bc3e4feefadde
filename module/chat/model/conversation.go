package model

import "time"

// Conversation is a chat thread between marketplace users. Direct
// conversations carry only participants; project conversations additionally
// reference the project so active team members can join without being listed.
type Conversation struct {
	ID            string    `bson:"_id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Participants  []string  `bson:"participants" json:"participants"`
	ProjectID     string    `bson:"project_id,omitempty" json:"projectId,omitempty"`
	CreatedBy     string    `bson:"created_by" json:"createdBy"`
	CreateTime    time.Time `bson:"create_time" json:"createTime"`
	LastMessageAt time.Time `bson:"last_message_at,omitempty" json:"lastMessageAt,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// HasParticipant reports whether userID is listed on the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
