package chat

import (
	"context"

	"github.com/TienThuan29/FreelanceIT-App-sub003/module/chat/model"
	"github.com/TienThuan29/FreelanceIT-App-sub003/module/user"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/security"
)

// Inbound event names (client -> gateway).
const (
	EvtJoinUserRoom       = "join_user_room"
	EvtJoinConversation   = "join_conversation"
	EvtLeaveConversation  = "leave_conversation"
	EvtSendMessage        = "send_message"
	EvtTypingStart        = "typing_start"
	EvtTypingStop         = "typing_stop"
	EvtMarkMessageRead    = "mark_message_read"
	EvtUpdateConversation = "update_conversation"
	EvtDeleteConversation = "delete_conversation"
)

// Outbound event names (gateway -> client/room).
const (
	EvtUserReady              = "user_ready"
	EvtUserOnline             = "user_online"
	EvtUserOffline            = "user_offline"
	EvtUserJoinedConversation = "user_joined_conversation"
	EvtJoinConversationError  = "join_conversation_error"
	EvtNewMessage             = "new_message"
	EvtMessageSent            = "message_sent"
	EvtMessageError           = "message_error"
	EvtUserTyping             = "user_typing"
	EvtMessageRead            = "message_read"
	EvtConversationUpdated    = "conversation_updated"
	EvtConversationDeleted    = "conversation_deleted"
	EvtConversationError      = "conversation_error"
	EvtConnectionError        = "connection_error"
)

// Error kinds surfaced inside error payloads.
const (
	KindAuthenticationFailed    = "AuthenticationFailed"
	KindConnectionLimitExceeded = "ConnectionLimitExceeded"
	KindDuplicateMessage        = "DuplicateMessage"
	KindMessageSendFailed       = "MessageSendFailed"
)

// TokenVerifier resolves a bearer credential presented at handshake time.
type TokenVerifier interface {
	Verify(token string) (*security.Identity, error)
}

// ChatStore is the durable conversation/message store collaborator.
// Lookup methods return (nil, nil) when the document does not exist.
type ChatStore interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	CreateMessage(ctx context.Context, in model.MessageInput) (*model.Message, error)
	UpdateConversationName(ctx context.Context, id, name string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// TeamStore authorizes non-participants who are project-team members.
type TeamStore interface {
	IsActiveMember(ctx context.Context, projectID, userID string) (bool, error)
}

// UserLookup enriches outbound message payloads with sender display data.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*user.Profile, error)
}

// PresenceMirror is the optional write-through of online state to external
// storage. Failures are logged, never surfaced.
type PresenceMirror interface {
	Online(ctx context.Context, userID, nodeID string) error
	Offline(ctx context.Context, userID string) error
}

// ----- inbound payloads -----

type JoinUserRoomPayload struct {
	UserID string `json:"userId"`
}

type ConversationRefPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID  string             `json:"conversationId"`
	Content         string             `json:"content"`
	Attachments     []model.Attachment `json:"attachments"`
	ClientMessageID string             `json:"clientMessageId"`
	Timestamp       int64              `json:"timestamp"`
}

type MarkReadPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type UpdateConversationPayload struct {
	ConversationID string `json:"conversationId"`
	Name           string `json:"name"`
}

// ----- outbound payloads -----

type ReadyData struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type PresenceData struct {
	UserID string `json:"userId"`
}

type JoinedConversationData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type JoinErrorData struct {
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

type SenderData struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

type NewMessageData struct {
	Message *model.Message `json:"message"`
	Sender  *SenderData    `json:"sender,omitempty"`
}

type MessageSentData struct {
	MessageID       string `json:"messageId"`
	ClientMessageID string `json:"clientMessageId"`
	ConversationID  string `json:"conversationId"`
}

type MessageErrorData struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

type TypingData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Typing         bool   `json:"typing"`
}

type MessageReadData struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
}

type ConversationUpdatedData struct {
	Conversation *model.Conversation `json:"conversation"`
}

type ConversationDeletedData struct {
	ConversationID string `json:"conversationId"`
}

type ConversationErrorData struct {
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

type ConnectionErrorData struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
