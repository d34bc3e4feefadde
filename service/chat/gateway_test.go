package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/TienThuan29/FreelanceIT-App-sub003/module/chat/model"
	"github.com/TienThuan29/FreelanceIT-App-sub003/module/user"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/errs"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/security"
)

// ----- collaborator fakes -----

type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	created       []*model.Message
	failCreate    bool
	failUpdate    bool
	failDelete    bool
}

func newFakeStore(convs ...*model.Conversation) *fakeStore {
	s := &fakeStore{conversations: make(map[string]*model.Conversation)}
	for _, c := range convs {
		s.conversations[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id], nil
}

func (s *fakeStore) CreateMessage(_ context.Context, in model.MessageInput) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, errors.New("store unavailable")
	}
	msg := &model.Message{
		ID:             fmt.Sprintf("srv-%d", len(s.created)+1),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Attachments:    in.Attachments,
		ClientMsgID:    in.ClientMsgID,
		CreateTime:     time.Now(),
	}
	s.created = append(s.created, msg)
	return msg, nil
}

func (s *fakeStore) UpdateConversationName(_ context.Context, id, name string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate {
		return nil, errors.New("store unavailable")
	}
	conv := s.conversations[id]
	if conv == nil {
		return nil, nil
	}
	conv.Name = name
	return conv, nil
}

func (s *fakeStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return errors.New("store unavailable")
	}
	delete(s.conversations, id)
	return nil
}

func (s *fakeStore) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

type fakeTeams struct {
	active map[string]bool // projectID:userID
}

func (f *fakeTeams) IsActiveMember(_ context.Context, projectID, userID string) (bool, error) {
	return f.active[projectID+":"+userID], nil
}

type fakeUsers struct {
	profiles map[string]*user.Profile
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*user.Profile, error) {
	return f.profiles[id], nil
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (*security.Identity, error) {
	if token == "" {
		return nil, errs.ErrAuthFailed
	}
	return &security.Identity{UserID: token, Role: "freelancer"}, nil
}

// ----- harness -----

type gatewayHarness struct {
	g     *Gateway
	clock *fakeClock
	store *fakeStore
	teams *fakeTeams
	users *fakeUsers
}

func newHarness(t *testing.T, convs ...*model.Conversation) *gatewayHarness {
	t.Helper()
	clock := newFakeClock()
	st := newFakeStore(convs...)
	tm := &fakeTeams{active: make(map[string]bool)}
	us := &fakeUsers{profiles: make(map[string]*user.Profile)}
	g := New(Config{
		MaxConnsPerUser: 5,
		PresenceWindow:  30 * time.Second,
		TypingWindow:    1 * time.Second,
		JoinLeaveWindow: 2 * time.Second,
		DedupeWindow:    5 * time.Second,
		Clock:           clock.Now,
	}, Deps{Verifier: fakeVerifier{}, Store: st, Teams: tm, Users: us})
	t.Cleanup(g.Close)
	return &gatewayHarness{g: g, clock: clock, store: st, teams: tm, users: us}
}

// connect registers a client and joins its personal room, failing the test on
// rejection.
func (h *gatewayHarness) connect(t *testing.T, connID, userID string) *Client {
	t.Helper()
	c := testClient(connID, userID)
	if _, err := h.g.Connect(c); err != nil {
		t.Fatalf("Connect %s/%s: %v", connID, userID, err)
	}
	return c
}

func (h *gatewayHarness) handle(c *Client, event string, data map[string]any) []Emit {
	return h.g.Handle(context.Background(), c, &Frame{Event: event, Data: data})
}

func emitsFor(emits []Emit, event string) []Emit {
	var out []Emit
	for _, e := range emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func singleEmit(t *testing.T, emits []Emit, event string) Emit {
	t.Helper()
	matched := emitsFor(emits, event)
	if len(matched) != 1 {
		t.Fatalf("emits for %s = %d, want 1 (all: %+v)", event, len(matched), emits)
	}
	return matched[0]
}

func projectConv(id, projectID string, participants ...string) *model.Conversation {
	return &model.Conversation{ID: id, ProjectID: projectID, Participants: participants}
}

func directConv(id string, participants ...string) *model.Conversation {
	return &model.Conversation{ID: id, Participants: participants}
}

// ----- connection lifecycle -----

func TestConnectEmitsReadyAndOnline(t *testing.T) {
	h := newHarness(t)
	c := testClient("c1", "u1")

	emits, err := h.g.Connect(c)
	if err != nil {
		t.Fatal(err)
	}
	ready := singleEmit(t, emits, EvtUserReady)
	if ready.scope != emitConn || ready.conn != c {
		t.Fatal("user_ready must target the new connection only")
	}
	online := singleEmit(t, emits, EvtUserOnline)
	if online.scope != emitAll {
		t.Fatal("user_online must broadcast to all connections")
	}
	if !h.g.Rooms().InRoom(UserRoom("u1"), "c1") {
		t.Fatal("connection missing from its personal room")
	}
}

func TestConnectSecondConnectionNoOnlineBroadcast(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "c1", "u1")

	emits, err := h.g.Connect(testClient("c2", "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(emitsFor(emits, EvtUserOnline)) != 0 {
		t.Fatal("second connection re-broadcast user_online")
	}
}

func TestConnectionLimitSixthConnectionRejected(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.connect(t, fmt.Sprintf("c%d", i), "uX")
	}

	_, err := h.g.Connect(testClient("c5", "uX"))
	if !errors.Is(err, errs.ErrConnectionLimit) {
		t.Fatalf("err = %v, want ErrConnectionLimit", err)
	}
	// Online set unchanged: still exactly the five registered connections.
	if got := len(h.g.Registry().Connections("uX")); got != 5 {
		t.Fatalf("connections = %d, want 5", got)
	}
}

func TestDisconnectLastConnectionBroadcastsOffline(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect(t, "c1", "u1")
	c2 := h.connect(t, "c2", "u1")

	if emits := h.g.Disconnect(c1); len(emits) != 0 {
		t.Fatalf("offline broadcast with a connection remaining: %+v", emits)
	}

	h.clock.Advance(time.Minute) // clear the presence window
	emits := h.g.Disconnect(c2)
	singleEmit(t, emits, EvtUserOffline)
	if h.g.Registry().IsOnline("u1") {
		t.Fatal("user still online after last disconnect")
	}
}

func TestDisconnectPurgesRoomMemberships(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	c := h.connect(t, "c1", "u1")
	h.handle(c, EvtJoinConversation, map[string]any{"conversationId": "conv1"})

	h.g.Disconnect(c)
	if h.g.Rooms().InRoom(ConversationRoom("conv1"), "c1") {
		t.Fatal("conversation membership survived disconnect")
	}
	if h.g.Rooms().InRoom(UserRoom("u1"), "c1") {
		t.Fatal("personal room membership survived disconnect")
	}
}

func TestPresenceFlappingIsThrottled(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "c1", "u1")
	// Reconnect within the presence window: no second online broadcast.
	h.g.Disconnect(c)
	c2 := testClient("c2", "u1")
	emits, err := h.g.Connect(c2)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitsFor(emits, EvtUserOnline)) != 0 {
		t.Fatal("flapping connection re-broadcast user_online within the window")
	}
}

// ----- join / leave -----

func TestJoinConversationParticipant(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	member := h.connect(t, "c2", "u2")
	h.handle(member, EvtJoinConversation, map[string]any{"conversationId": "conv1"})

	joiner := h.connect(t, "c1", "u1")
	emits := h.handle(joiner, EvtJoinConversation, map[string]any{"conversationId": "conv1"})

	if !h.g.Rooms().InRoom(ConversationRoom("conv1"), "c1") {
		t.Fatal("participant not admitted to the room")
	}
	joined := singleEmit(t, emits, EvtUserJoinedConversation)
	if joined.scope != emitRoomExcept || joined.except != "c1" {
		t.Fatal("join broadcast must exclude the joining connection")
	}
}

func TestJoinConversationTeamMember(t *testing.T) {
	h := newHarness(t, projectConv("conv1", "p1", "u1"))
	h.teams.active["p1:u9"] = true

	c := h.connect(t, "c9", "u9")
	emits := h.handle(c, EvtJoinConversation, map[string]any{"conversationId": "conv1"})

	if len(emitsFor(emits, EvtJoinConversationError)) != 0 {
		t.Fatalf("active team member denied: %+v", emits)
	}
	if !h.g.Rooms().InRoom(ConversationRoom("conv1"), "c9") {
		t.Fatal("team member not admitted to the room")
	}
}

func TestJoinConversationDeniedNotParticipant(t *testing.T) {
	h := newHarness(t, projectConv("c2", "p1", "u1"))

	outsider := h.connect(t, "cb", "uB")
	emits := h.handle(outsider, EvtJoinConversation, map[string]any{"conversationId": "c2"})

	e := singleEmit(t, emits, EvtJoinConversationError)
	if e.scope != emitConn || e.conn != outsider {
		t.Fatal("join error must go to the requesting connection only")
	}
	data := e.Data.(JoinErrorData)
	if data.ConversationID != "c2" || data.Error != errs.ErrNotParticipant.Msg {
		t.Fatalf("unexpected error payload: %+v", data)
	}
	if h.g.Rooms().InRoom(ConversationRoom("c2"), "cb") {
		t.Fatal("denied user was added to the room")
	}
}

func TestJoinConversationNotFound(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "c1", "u1")
	emits := h.handle(c, EvtJoinConversation, map[string]any{"conversationId": "missing"})

	e := singleEmit(t, emits, EvtJoinConversationError)
	if e.Data.(JoinErrorData).Error != errs.ErrConversationNotFound.Msg {
		t.Fatalf("unexpected error payload: %+v", e.Data)
	}
}

func TestRapidRejoinSuppressesBroadcastNotMembership(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	c := h.connect(t, "c1", "u1")

	h.handle(c, EvtJoinConversation, map[string]any{"conversationId": "conv1"})
	h.handle(c, EvtLeaveConversation, map[string]any{"conversationId": "conv1"})
	emits := h.handle(c, EvtJoinConversation, map[string]any{"conversationId": "conv1"})

	// Membership mutation always proceeds; only the broadcast is suppressed.
	if !h.g.Rooms().InRoom(ConversationRoom("conv1"), "c1") {
		t.Fatal("rejoin did not restore membership")
	}
	if len(emitsFor(emits, EvtUserJoinedConversation)) != 0 {
		t.Fatal("rapid rejoin re-emitted the join broadcast")
	}
}

func TestLeaveUnknownConversationIsNoop(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "c1", "u1")
	if emits := h.handle(c, EvtLeaveConversation, map[string]any{"conversationId": "nope"}); len(emits) != 0 {
		t.Fatalf("leave of unknown conversation emitted %+v", emits)
	}
}

// ----- send_message -----

func TestSendMessagePersistsBroadcastsAndAcks(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	h.users.profiles["u1"] = &user.Profile{ID: "u1", DisplayName: "Alice", Avatar: "a.png"}
	c := h.connect(t, "c1", "u1")
	h.handle(c, EvtJoinConversation, map[string]any{"conversationId": "conv1"})

	emits := h.handle(c, EvtSendMessage, map[string]any{
		"conversationId":  "conv1",
		"content":         "hi",
		"clientMessageId": "m1",
	})

	msg := singleEmit(t, emits, EvtNewMessage)
	if msg.scope != emitRoom || msg.room != ConversationRoom("conv1") {
		t.Fatal("new_message must broadcast to the conversation room")
	}
	nm := msg.Data.(NewMessageData)
	if nm.Message.Content != "hi" || nm.Message.SenderID != "u1" {
		t.Fatalf("unexpected message: %+v", nm.Message)
	}
	if nm.Sender == nil || nm.Sender.DisplayName != "Alice" {
		t.Fatalf("sender enrichment missing: %+v", nm.Sender)
	}

	ack := singleEmit(t, emits, EvtMessageSent)
	sent := ack.Data.(MessageSentData)
	if sent.MessageID != nm.Message.ID || sent.ClientMessageID != "m1" {
		t.Fatalf("ack does not carry the durable id: %+v", sent)
	}
	if h.store.createdCount() != 1 {
		t.Fatalf("persisted %d messages, want 1", h.store.createdCount())
	}
}

func TestSendMessageDuplicateWithinWindow(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	c := h.connect(t, "c1", "u1")
	payload := map[string]any{"conversationId": "conv1", "content": "hi", "clientMessageId": "m1"}

	first := h.handle(c, EvtSendMessage, payload)
	singleEmit(t, first, EvtNewMessage)

	h.clock.Advance(time.Second)
	second := h.handle(c, EvtSendMessage, payload)
	if len(emitsFor(second, EvtNewMessage)) != 0 {
		t.Fatal("duplicate produced a second new_message broadcast")
	}
	e := singleEmit(t, second, EvtMessageError)
	if e.scope != emitConn || e.conn != c {
		t.Fatal("message_error must go to the sender only")
	}
	data := e.Data.(MessageErrorData)
	if data.MessageID != "m1" || data.Error != KindDuplicateMessage {
		t.Fatalf("unexpected error payload: %+v", data)
	}
	if h.store.createdCount() != 1 {
		t.Fatalf("duplicate was persisted: %d messages", h.store.createdCount())
	}
}

func TestSendMessageAcceptedAfterDedupeWindow(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1"))
	c := h.connect(t, "c1", "u1")
	payload := map[string]any{"conversationId": "conv1", "content": "hi", "clientMessageId": "m1"}

	h.handle(c, EvtSendMessage, payload)
	h.clock.Advance(6 * time.Second)
	emits := h.handle(c, EvtSendMessage, payload)
	singleEmit(t, emits, EvtNewMessage)
	if h.store.createdCount() != 2 {
		t.Fatalf("persisted %d messages, want 2", h.store.createdCount())
	}
}

func TestSendMessagePersistFailureReportsAndReleasesDedupe(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1"))
	c := h.connect(t, "c1", "u1")
	payload := map[string]any{"conversationId": "conv1", "content": "hi", "clientMessageId": "m1"}

	h.store.failCreate = true
	emits := h.handle(c, EvtSendMessage, payload)
	e := singleEmit(t, emits, EvtMessageError)
	if e.Data.(MessageErrorData).Error != KindMessageSendFailed {
		t.Fatalf("unexpected error payload: %+v", e.Data)
	}
	if len(emitsFor(emits, EvtNewMessage)) != 0 {
		t.Fatal("failed persist still broadcast new_message")
	}

	// Resubmission with the same client id must be accepted.
	h.store.failCreate = false
	emits = h.handle(c, EvtSendMessage, payload)
	singleEmit(t, emits, EvtNewMessage)
}

func TestSendMessageMissingClientIDDropped(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1"))
	c := h.connect(t, "c1", "u1")
	emits := h.handle(c, EvtSendMessage, map[string]any{"conversationId": "conv1", "content": "hi"})
	if len(emits) != 0 {
		t.Fatalf("malformed send_message emitted %+v", emits)
	}
}

// ----- typing / read receipts -----

func TestTypingStartThrottled(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	c := h.connect(t, "c1", "u1")
	payload := map[string]any{"conversationId": "conv1"}

	first := h.handle(c, EvtTypingStart, payload)
	e := singleEmit(t, first, EvtUserTyping)
	if e.scope != emitRoomExcept || e.except != "c1" {
		t.Fatal("typing broadcast must exclude the sender")
	}
	if !e.Data.(TypingData).Typing {
		t.Fatal("typing_start must carry typing=true")
	}

	if second := h.handle(c, EvtTypingStart, payload); len(second) != 0 {
		t.Fatal("typing_start within the window was not dropped")
	}
}

func TestTypingStopNeverThrottled(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	c := h.connect(t, "c1", "u1")
	payload := map[string]any{"conversationId": "conv1"}

	h.handle(c, EvtTypingStart, payload)
	for i := 0; i < 3; i++ {
		emits := h.handle(c, EvtTypingStop, payload)
		e := singleEmit(t, emits, EvtUserTyping)
		if e.Data.(TypingData).Typing {
			t.Fatal("typing_stop must carry typing=false")
		}
	}
}

func TestMarkMessageRead(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	c := h.connect(t, "c1", "u1")

	emits := h.handle(c, EvtMarkMessageRead, map[string]any{"messageId": "m1", "conversationId": "conv1"})
	e := singleEmit(t, emits, EvtMessageRead)
	if e.scope != emitRoomExcept || e.except != "c1" {
		t.Fatal("message_read must exclude the reader")
	}
	data := e.Data.(MessageReadData)
	if data.ReaderID != "u1" || data.MessageID != "m1" {
		t.Fatalf("unexpected read payload: %+v", data)
	}
}

// ----- conversation mutations -----

func TestUpdateConversationBroadcasts(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1", "u2"))
	c := h.connect(t, "c1", "u1")

	emits := h.handle(c, EvtUpdateConversation, map[string]any{"conversationId": "conv1", "name": "Sprint chat"})
	e := singleEmit(t, emits, EvtConversationUpdated)
	if e.scope != emitRoom || e.room != ConversationRoom("conv1") {
		t.Fatal("conversation_updated must broadcast to the room")
	}
	if e.Data.(ConversationUpdatedData).Conversation.Name != "Sprint chat" {
		t.Fatal("update not reflected in the broadcast payload")
	}
}

func TestUpdateConversationFailureReportedToActor(t *testing.T) {
	h := newHarness(t, directConv("conv1", "u1"))
	h.store.failUpdate = true
	c := h.connect(t, "c1", "u1")

	emits := h.handle(c, EvtUpdateConversation, map[string]any{"conversationId": "conv1", "name": "x"})
	e := singleEmit(t, emits, EvtConversationError)
	if e.scope != emitConn || e.conn != c {
		t.Fatal("conversation_error must go to the actor only")
	}
}

func TestDeleteConversationEvictsAndNotifiesParticipants(t *testing.T) {
	h := newHarness(t, directConv("c3", "u1", "u2", "u3"))
	a := h.connect(t, "ca", "u1")
	b := h.connect(t, "cb", "u2")
	h.handle(a, EvtJoinConversation, map[string]any{"conversationId": "c3"})
	h.handle(b, EvtJoinConversation, map[string]any{"conversationId": "c3"})

	emits := h.handle(a, EvtDeleteConversation, map[string]any{"conversationId": "c3"})

	deleted := emitsFor(emits, EvtConversationDeleted)
	// One direct delivery to the evicted room members plus one personal-room
	// push per participant.
	if len(deleted) != 4 {
		t.Fatalf("conversation_deleted emits = %d, want 4", len(deleted))
	}
	var evicted Emit
	personal := map[string]bool{}
	for _, e := range deleted {
		switch e.scope {
		case emitConns:
			evicted = e
		case emitRoom:
			personal[e.room] = true
		}
	}
	if len(evicted.conns) != 2 {
		t.Fatalf("evicted delivery reached %d connections, want 2", len(evicted.conns))
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		if !personal[UserRoom(u)] {
			t.Fatalf("participant %s's personal room not notified", u)
		}
	}
	if len(h.g.Rooms().Members(ConversationRoom("c3"))) != 0 {
		t.Fatal("room not evicted after deletion")
	}
}

func TestDeleteConversationNotFound(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "c1", "u1")
	emits := h.handle(c, EvtDeleteConversation, map[string]any{"conversationId": "missing"})
	singleEmit(t, emits, EvtConversationError)
}

// ----- misc dispatch -----

func TestJoinUserRoomOnlyOwnRoom(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "c1", "u1")

	if emits := h.handle(c, EvtJoinUserRoom, map[string]any{"userId": "someone-else"}); len(emits) != 0 {
		t.Fatalf("foreign join_user_room emitted %+v", emits)
	}
	if h.g.Rooms().InRoom(UserRoom("someone-else"), "c1") {
		t.Fatal("connection joined another user's personal room")
	}
}

func TestUnknownEventDropped(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t, "c1", "u1")
	if emits := h.handle(c, "no_such_event", nil); len(emits) != 0 {
		t.Fatalf("unknown event emitted %+v", emits)
	}
}
