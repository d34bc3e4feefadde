package model

import "time"

type Attachment struct {
	URL         string `bson:"url" json:"url"`
	Name        string `bson:"name,omitempty" json:"name,omitempty"`
	ContentType string `bson:"content_type,omitempty" json:"contentType,omitempty"`
	Size        int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// Message is a persisted conversation message. ClientMsgID is the
// client-supplied idempotency key; ID is the durable server identifier.
type Message struct {
	ID             string       `bson:"_id" json:"id"`
	ConversationID string       `bson:"conversation_id" json:"conversationId"`
	SenderID       string       `bson:"sender_id" json:"senderId"`
	Content        string       `bson:"content" json:"content"`
	Attachments    []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ClientMsgID    string       `bson:"client_msg_id,omitempty" json:"clientMessageId,omitempty"`
	CreateTime     time.Time    `bson:"create_time" json:"createTime"`
}

func (Message) TableName() string { return "messages" }

// MessageInput is what the gateway hands the store when persisting a new
// message; the store assigns the durable ID and timestamp.
type MessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Attachments    []Attachment
	ClientMsgID    string
}
