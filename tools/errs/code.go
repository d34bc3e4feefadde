package errs

// Error codes surfaced by the conversation gateway. The 14xx range maps to
// client-caused rejections, 15xx to server-side failures.
var (
	ErrAuthFailed           = NewCodeError(1401, "authentication failed")
	ErrConnectionLimit      = NewCodeError(1402, "connection limit exceeded")
	ErrNotParticipant       = NewCodeError(1403, "User is not a participant in this conversation")
	ErrConversationNotFound = NewCodeError(1404, "conversation not found")
	ErrBadPayload           = NewCodeError(1422, "malformed event payload")
	ErrDuplicateMessage     = NewCodeError(1429, "duplicate message")
	ErrMessageSendFailed    = NewCodeError(1500, "message send failed")
	ErrConversationUpdate   = NewCodeError(1501, "conversation update failed")
)
