package chat

import (
	"context"
	"time"

	"github.com/TienThuan29/FreelanceIT-App-sub003/logger"
	"github.com/TienThuan29/FreelanceIT-App-sub003/module/chat/model"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/decode"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/errs"
)

// Config tunes the gateway. Zero values fall back to the defaults in norm().
type Config struct {
	NodeID string

	MaxConnsPerUser int

	PresenceWindow  time.Duration
	TypingWindow    time.Duration
	JoinLeaveWindow time.Duration
	DedupeWindow    time.Duration

	CleanupInterval time.Duration
	StaleMaxAge     time.Duration

	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int
	PingInterval  time.Duration
	PongWait      time.Duration
	ReadLimit     int64
	StoreTimeout  time.Duration

	Clock func() time.Time // injectable clock for tests; nil => time.Now
}

func (c *Config) norm() {
	if c.NodeID == "" {
		c.NodeID = "gateway-1"
	}
	if c.MaxConnsPerUser <= 0 {
		c.MaxConnsPerUser = 5
	}
	if c.PresenceWindow <= 0 {
		c.PresenceWindow = 30 * time.Second
	}
	if c.TypingWindow <= 0 {
		c.TypingWindow = 1 * time.Second
	}
	if c.JoinLeaveWindow <= 0 {
		c.JoinLeaveWindow = 2 * time.Second
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = 5 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.StaleMaxAge <= 0 {
		c.StaleMaxAge = 10 * time.Minute
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 4
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 75 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Deps are the gateway's collaborator dependencies, passed explicitly at
// construction. Mirror is optional.
type Deps struct {
	Verifier TokenVerifier
	Store    ChatStore
	Teams    TeamStore
	Users    UserLookup
	Mirror   PresenceMirror
}

// Gateway wires inbound events to the registry, rooms, and throttle guards,
// and fans outbound events back to rooms and connections. Handlers return
// the events to emit; Dispatch performs the actual fan-out.
type Gateway struct {
	cfg  Config
	deps Deps

	registry *Registry
	rooms    *RoomManager
	fanout   *Fanout
	cleaner  *Cleaner

	presence  *Window // key: userID
	typing    *Window // key: userID
	joinLeave *Window // key: userID:conversationID
	dedupe    *Window // key: clientMessageID
}

func New(cfg Config, deps Deps) *Gateway {
	cfg.norm()
	g := &Gateway{
		cfg:       cfg,
		deps:      deps,
		registry:  NewRegistry(cfg.MaxConnsPerUser),
		fanout:    NewFanout(cfg.FanoutWorkers, cfg.FanoutQueue),
		presence:  NewWindow(cfg.Clock),
		typing:    NewWindow(cfg.Clock),
		joinLeave: NewWindow(cfg.Clock),
		dedupe:    NewWindow(cfg.Clock),
	}
	g.rooms = NewRoomManager(deps.Store, deps.Teams)
	g.cleaner = NewCleaner(cfg.CleanupInterval, cfg.StaleMaxAge, g.registry,
		g.presence, g.typing, g.joinLeave, g.dedupe)
	return g
}

// Start launches the cleanup scheduler.
func (g *Gateway) Start() { g.cleaner.Start() }

// Close stops the cleanup scheduler and the fan-out workers.
func (g *Gateway) Close() {
	g.cleaner.Stop()
	g.fanout.Stop()
}

func (g *Gateway) Registry() *Registry { return g.registry }
func (g *Gateway) Rooms() *RoomManager { return g.rooms }

// ----- emits -----

type emitScope int

const (
	emitConn emitScope = iota
	emitConns
	emitUser
	emitRoom
	emitRoomExcept
	emitAll
)

// Emit is one outbound event plus its target; handlers return Emits and the
// dispatch step resolves targets to live connections.
type Emit struct {
	scope  emitScope
	conn   *Client
	conns  []*Client
	userID string
	room   string
	except string

	Event string
	Data  any
}

func toConn(c *Client, event string, data any) Emit {
	return Emit{scope: emitConn, conn: c, Event: event, Data: data}
}

func toConns(cs []*Client, event string, data any) Emit {
	return Emit{scope: emitConns, conns: cs, Event: event, Data: data}
}

func toUser(userID, event string, data any) Emit {
	return Emit{scope: emitUser, userID: userID, Event: event, Data: data}
}

func toRoom(room, event string, data any) Emit {
	return Emit{scope: emitRoom, room: room, Event: event, Data: data}
}

func toRoomExcept(room, exceptConnID, event string, data any) Emit {
	return Emit{scope: emitRoomExcept, room: room, except: exceptConnID, Event: event, Data: data}
}

func toAll(event string, data any) Emit {
	return Emit{scope: emitAll, Event: event, Data: data}
}

// Dispatch encodes and fans out the emitted events.
func (g *Gateway) Dispatch(emits []Emit) {
	for _, e := range emits {
		payload, err := EncodeFrame(e.Event, e.Data)
		if err != nil {
			logger.Errorf("[gateway] encode %s: %v", e.Event, err)
			continue
		}
		switch e.scope {
		case emitConn:
			e.conn.enqueue(payload)
		case emitConns:
			g.fanout.Broadcast(e.conns, payload)
		case emitUser:
			g.fanout.Broadcast(g.registry.Connections(e.userID), payload)
		case emitRoom:
			g.fanout.Broadcast(g.rooms.Members(e.room), payload)
		case emitRoomExcept:
			g.fanout.Broadcast(g.rooms.MembersExcept(e.room, e.except), payload)
		case emitAll:
			g.fanout.Broadcast(g.registry.AllClients(), payload)
		}
	}
}

// NotifyUser pushes a server-initiated event to every connection in the
// user's personal room (e.g. conversation-created notifications).
func (g *Gateway) NotifyUser(userID, event string, data any) {
	g.Dispatch([]Emit{toRoom(UserRoom(userID), event, data)})
}

// ----- connection lifecycle -----

// Connect registers an authenticated connection: connection-limit check,
// personal room join, ready confirmation, and a throttled online broadcast
// when this is the user's first connection.
func (g *Gateway) Connect(c *Client) ([]Emit, error) {
	first, err := g.registry.Register(c)
	if err != nil {
		return nil, err
	}
	g.rooms.JoinPersonalRoom(c)

	emits := []Emit{toConn(c, EvtUserReady, ReadyData{ConnectionID: c.ConnID, UserID: c.UserID})}
	if first {
		g.mirrorOnline(c.UserID)
		if g.presence.TryAccept(c.UserID, g.cfg.PresenceWindow) {
			emits = append(emits, toAll(EvtUserOnline, PresenceData{UserID: c.UserID}))
		}
	}
	return emits, nil
}

// Disconnect runs on transport close: unregister first, then purge room
// memberships, then a throttled offline broadcast if no connections remain.
func (g *Gateway) Disconnect(c *Client) []Emit {
	remaining := g.registry.Unregister(c)
	g.rooms.RemoveConnection(c)

	if remaining > 0 {
		return nil
	}
	g.mirrorOffline(c.UserID)
	if !g.presence.TryAccept(c.UserID, g.cfg.PresenceWindow) {
		return nil
	}
	return []Emit{toAll(EvtUserOffline, PresenceData{UserID: c.UserID})}
}

func (g *Gateway) mirrorOnline(userID string) {
	if g.deps.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.StoreTimeout)
	defer cancel()
	if err := g.deps.Mirror.Online(ctx, userID, g.cfg.NodeID); err != nil {
		logger.Warnf("[gateway] presence mirror online user=%s: %v", userID, err)
	}
}

func (g *Gateway) mirrorOffline(userID string) {
	if g.deps.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.StoreTimeout)
	defer cancel()
	if err := g.deps.Mirror.Offline(ctx, userID); err != nil {
		logger.Warnf("[gateway] presence mirror offline user=%s: %v", userID, err)
	}
}

// ----- event handling -----

// Handle runs a single in-order step for the connection. Malformed payloads
// are dropped silently (logged only); collaborator failures map to error
// events for the actor and never crash the handling task.
func (g *Gateway) Handle(ctx context.Context, c *Client, f *Frame) []Emit {
	switch f.Event {
	case EvtJoinUserRoom:
		return g.handleJoinUserRoom(c, f)
	case EvtJoinConversation:
		return g.handleJoinConversation(ctx, c, f)
	case EvtLeaveConversation:
		return g.handleLeaveConversation(c, f)
	case EvtSendMessage:
		return g.handleSendMessage(ctx, c, f)
	case EvtTypingStart:
		return g.handleTyping(c, f, true)
	case EvtTypingStop:
		return g.handleTyping(c, f, false)
	case EvtMarkMessageRead:
		return g.handleMarkRead(c, f)
	case EvtUpdateConversation:
		return g.handleUpdateConversation(ctx, c, f)
	case EvtDeleteConversation:
		return g.handleDeleteConversation(ctx, c, f)
	default:
		logger.Debug("[gateway] unknown event " + f.Event)
		return nil
	}
}

func (g *Gateway) handleJoinUserRoom(c *Client, f *Frame) []Emit {
	p, err := decode.DecodeMap[JoinUserRoomPayload](f.Data)
	if err != nil || p.UserID == "" {
		logger.Warnf("[gateway] join_user_room bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}
	// A connection may only join its own personal room.
	if p.UserID != c.UserID {
		logger.Warnf("[gateway] join_user_room mismatch conn=%s user=%s requested=%s", c.ConnID, c.UserID, p.UserID)
		return nil
	}
	g.rooms.JoinPersonalRoom(c)
	return nil
}

func (g *Gateway) handleJoinConversation(ctx context.Context, c *Client, f *Frame) []Emit {
	p, err := decode.DecodeMap[ConversationRefPayload](f.Data)
	if err != nil || p.ConversationID == "" {
		logger.Warnf("[gateway] join_conversation bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()
	_, err = g.rooms.JoinConversation(sctx, c, p.ConversationID)
	if err != nil {
		msg := "unable to join conversation"
		if ce := errs.CodeOf(err); ce != nil {
			msg = ce.Msg
		} else {
			logger.Errorf("[gateway] join_conversation conv=%s user=%s: %v", p.ConversationID, c.UserID, err)
		}
		return []Emit{toConn(c, EvtJoinConversationError, JoinErrorData{
			ConversationID: p.ConversationID,
			Error:          msg,
		})}
	}

	// The join/leave throttle is advisory: it only suppresses broadcast spam
	// for rapid repeated joins/leaves, never the membership change itself.
	if !g.joinLeave.TryAccept(c.UserID+":"+p.ConversationID, g.cfg.JoinLeaveWindow) {
		return nil
	}
	return []Emit{toRoomExcept(ConversationRoom(p.ConversationID), c.ConnID,
		EvtUserJoinedConversation, JoinedConversationData{
			ConversationID: p.ConversationID,
			UserID:         c.UserID,
		})}
}

func (g *Gateway) handleLeaveConversation(c *Client, f *Frame) []Emit {
	p, err := decode.DecodeMap[ConversationRefPayload](f.Data)
	if err != nil || p.ConversationID == "" {
		logger.Warnf("[gateway] leave_conversation bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}
	g.rooms.LeaveConversation(c, p.ConversationID)
	// Consume the shared join/leave window so a rapid re-join right after a
	// leave does not re-emit presence churn. Invalid identifiers are a no-op.
	g.joinLeave.TryAccept(c.UserID+":"+p.ConversationID, g.cfg.JoinLeaveWindow)
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, f *Frame) []Emit {
	p, err := decode.DecodeMap[SendMessagePayload](f.Data)
	if err != nil || p.ConversationID == "" || p.ClientMessageID == "" {
		logger.Warnf("[gateway] send_message bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}

	if !g.dedupe.TryAccept(p.ClientMessageID, g.cfg.DedupeWindow) {
		return []Emit{toConn(c, EvtMessageError, MessageErrorData{
			MessageID: p.ClientMessageID,
			Error:     KindDuplicateMessage,
		})}
	}

	// A write already dispatched survives the connection closing; only the
	// timeout bounds it.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.StoreTimeout)
	defer cancel()
	msg, err := g.deps.Store.CreateMessage(sctx, model.MessageInput{
		ConversationID: p.ConversationID,
		SenderID:       c.UserID,
		Content:        p.Content,
		Attachments:    p.Attachments,
		ClientMsgID:    p.ClientMessageID,
	})
	if err != nil {
		// Release the dedupe slot so the client's resubmission is accepted.
		g.dedupe.Forget(p.ClientMessageID)
		logger.Errorf("[gateway] persist message conv=%s user=%s: %v", p.ConversationID, c.UserID, err)
		return []Emit{toConn(c, EvtMessageError, MessageErrorData{
			MessageID: p.ClientMessageID,
			Error:     KindMessageSendFailed,
		})}
	}

	return []Emit{
		toRoom(ConversationRoom(p.ConversationID), EvtNewMessage, NewMessageData{
			Message: msg,
			Sender:  g.senderData(ctx, c.UserID),
		}),
		toConn(c, EvtMessageSent, MessageSentData{
			MessageID:       msg.ID,
			ClientMessageID: p.ClientMessageID,
			ConversationID:  p.ConversationID,
		}),
	}
}

func (g *Gateway) handleTyping(c *Client, f *Frame, start bool) []Emit {
	p, err := decode.DecodeMap[ConversationRefPayload](f.Data)
	if err != nil || p.ConversationID == "" {
		logger.Warnf("[gateway] typing bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}
	// typing_stop always goes through so clients reliably clear the
	// indicator; only typing_start is rate limited.
	if start && !g.typing.TryAccept(c.UserID, g.cfg.TypingWindow) {
		return nil
	}
	return []Emit{toRoomExcept(ConversationRoom(p.ConversationID), c.ConnID,
		EvtUserTyping, TypingData{
			ConversationID: p.ConversationID,
			UserID:         c.UserID,
			Typing:         start,
		})}
}

func (g *Gateway) handleMarkRead(c *Client, f *Frame) []Emit {
	p, err := decode.DecodeMap[MarkReadPayload](f.Data)
	if err != nil || p.MessageID == "" || p.ConversationID == "" {
		logger.Warnf("[gateway] mark_message_read bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}
	// Read-receipt persistence is a separate non-real-time path; the gateway
	// only relays.
	return []Emit{toRoomExcept(ConversationRoom(p.ConversationID), c.ConnID,
		EvtMessageRead, MessageReadData{
			MessageID:      p.MessageID,
			ConversationID: p.ConversationID,
			ReaderID:       c.UserID,
		})}
}

func (g *Gateway) handleUpdateConversation(ctx context.Context, c *Client, f *Frame) []Emit {
	p, err := decode.DecodeMap[UpdateConversationPayload](f.Data)
	if err != nil || p.ConversationID == "" || p.Name == "" {
		logger.Warnf("[gateway] update_conversation bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.StoreTimeout)
	defer cancel()
	conv, err := g.deps.Store.UpdateConversationName(sctx, p.ConversationID, p.Name)
	if err != nil {
		logger.Errorf("[gateway] update conversation %s: %v", p.ConversationID, err)
		return []Emit{toConn(c, EvtConversationError, ConversationErrorData{
			ConversationID: p.ConversationID,
			Error:          errs.ErrConversationUpdate.Msg,
		})}
	}
	if conv == nil {
		return []Emit{toConn(c, EvtConversationError, ConversationErrorData{
			ConversationID: p.ConversationID,
			Error:          errs.ErrConversationNotFound.Msg,
		})}
	}
	return []Emit{toRoom(ConversationRoom(p.ConversationID), EvtConversationUpdated,
		ConversationUpdatedData{Conversation: conv})}
}

func (g *Gateway) handleDeleteConversation(ctx context.Context, c *Client, f *Frame) []Emit {
	p, err := decode.DecodeMap[ConversationRefPayload](f.Data)
	if err != nil || p.ConversationID == "" {
		logger.Warnf("[gateway] delete_conversation bad payload conn=%s: %v", c.ConnID, err)
		return nil
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.StoreTimeout)
	defer cancel()
	conv, err := g.deps.Store.GetConversation(sctx, p.ConversationID)
	if err != nil {
		logger.Errorf("[gateway] load conversation %s: %v", p.ConversationID, err)
		return []Emit{toConn(c, EvtConversationError, ConversationErrorData{
			ConversationID: p.ConversationID,
			Error:          errs.ErrConversationUpdate.Msg,
		})}
	}
	if conv == nil {
		return []Emit{toConn(c, EvtConversationError, ConversationErrorData{
			ConversationID: p.ConversationID,
			Error:          errs.ErrConversationNotFound.Msg,
		})}
	}
	if err := g.deps.Store.DeleteConversation(sctx, p.ConversationID); err != nil {
		logger.Errorf("[gateway] delete conversation %s: %v", p.ConversationID, err)
		return []Emit{toConn(c, EvtConversationError, ConversationErrorData{
			ConversationID: p.ConversationID,
			Error:          errs.ErrConversationUpdate.Msg,
		})}
	}

	// Eviction happens before dispatch, so capture the room's members first
	// and deliver the deletion notice to them directly.
	evicted := g.rooms.Evict(ConversationRoom(p.ConversationID))
	deleted := ConversationDeletedData{ConversationID: p.ConversationID}
	emits := make([]Emit, 0, len(conv.Participants)+1)
	emits = append(emits, toConns(evicted, EvtConversationDeleted, deleted))
	for _, participant := range conv.Participants {
		emits = append(emits, toRoom(UserRoom(participant), EvtConversationDeleted, deleted))
	}
	return emits
}

func (g *Gateway) senderData(ctx context.Context, userID string) *SenderData {
	sctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()
	prof, err := g.deps.Users.FindByID(sctx, userID)
	if err != nil || prof == nil {
		if err != nil {
			logger.Warnf("[gateway] user lookup %s: %v", userID, err)
		}
		return &SenderData{ID: userID}
	}
	return &SenderData{ID: prof.ID, DisplayName: prof.DisplayName, Avatar: prof.Avatar}
}
