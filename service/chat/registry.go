package chat

import (
	"sync"

	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/errs"
)

// Registry maps authenticated users to their live connections and enforces
// the per-user connection cap. Presence is derived state: a user is online
// iff their live connection count is greater than zero.
type Registry struct {
	mu     sync.RWMutex
	counts map[string]int                // userID -> live connection count
	byConn map[string]*Client            // connID -> client
	byUser map[string]map[string]*Client // userID -> connID -> client

	maxPerUser int
}

func NewRegistry(maxPerUser int) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = 5
	}
	return &Registry{
		counts:     make(map[string]int),
		byConn:     make(map[string]*Client),
		byUser:     make(map[string]map[string]*Client),
		maxPerUser: maxPerUser,
	}
}

// Register records the connection. It returns ErrConnectionLimit when the
// user already holds the maximum number of live connections, and
// first=true when this is the user's first live connection.
func (r *Registry) Register(c *Client) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counts[c.UserID] >= r.maxPerUser {
		return false, errs.ErrConnectionLimit.WithDetail("user " + c.UserID)
	}

	mm := r.byUser[c.UserID]
	if mm == nil {
		mm = make(map[string]*Client)
		r.byUser[c.UserID] = mm
	}
	mm[c.ConnID] = c
	r.byConn[c.ConnID] = c
	r.counts[c.UserID]++
	return r.counts[c.UserID] == 1, nil
}

// Unregister removes the connection and returns the user's remaining live
// connection count. The zero-count bookkeeping entry stays behind for the
// cleanup scheduler.
func (r *Registry) Unregister(c *Client) (remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ConnID]; !ok {
		return r.counts[c.UserID]
	}
	delete(r.byConn, c.ConnID)
	if mm := r.byUser[c.UserID]; mm != nil {
		delete(mm, c.ConnID)
		if len(mm) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	if r.counts[c.UserID] > 0 {
		r.counts[c.UserID]--
	}
	return r.counts[c.UserID]
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[userID] > 0
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// Connections returns the user's live clients.
func (r *Registry) Connections(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byUser[userID]
	if len(mm) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(mm))
	for _, c := range mm {
		out = append(out, c)
	}
	return out
}

// AllClients returns every live client (global broadcasts).
func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

// SweepZero drops count entries for users with no live connections. Called by
// the cleanup scheduler.
func (r *Registry) SweepZero() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for u, cnt := range r.counts {
		if cnt <= 0 {
			delete(r.counts, u)
			n++
		}
	}
	return n
}
