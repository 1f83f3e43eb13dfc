package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"taskmate/backend/internal/hub"
	"taskmate/backend/internal/sync/backend"
	"taskmate/backend/internal/sync/realtime"
	"taskmate/backend/internal/sync/retry"
	"taskmate/backend/internal/sync/schema"

	"go.uber.org/zap"
)

// ErrRequestBlocked is returned when a friend request is short-circuited
// locally: the receiver rejected a previous request from this user, or a
// block exists. No network call is made.
var ErrRequestBlocked = errors.New("cannot send a request to this user")

// FriendBackend is the slice of the access layer the friend store needs.
type FriendBackend interface {
	Friends(ctx context.Context) ([]schema.Friend, error)
	FriendRequests(ctx context.Context) ([]schema.FriendRequest, error)
	BlockedUsers(ctx context.Context) ([]schema.BlockedUser, error)
	SendFriendRequest(ctx context.Context, receiverID uint) (*schema.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, senderID uint) (*schema.FriendRequest, error)
	RejectFriendRequest(ctx context.Context, senderID uint) (*schema.FriendRequest, error)
	RemoveFriend(ctx context.Context, friendID uint) error
	BlockUser(ctx context.Context, userID uint) (*schema.BlockedUser, error)
}

type requestKey struct {
	sender   uint
	receiver uint
}

// FriendStore caches the current user's friends, requests and blocks.
type FriendStore struct {
	mu       sync.RWMutex
	backend  FriendBackend
	user     func() uint
	profiles *ProfileStore
	toasts   *Toasts
	log      *zap.Logger

	// Retry governs FetchAll. Tests may replace its Sleep and Rand.
	Retry retry.Policy

	friends  map[uint]schema.Friend
	requests map[requestKey]schema.FriendRequest
	// rejectedSent tracks receivers who rejected a request from the current
	// user, so a re-request fails locally without a network call.
	rejectedSent map[uint]struct{}
	blocked      map[uint]struct{}

	loading bool
	err     error
}

// NewFriendStore creates an empty friend cache. currentUser supplies the
// signed-in user id.
func NewFriendStore(b FriendBackend, currentUser func() uint, profiles *ProfileStore, toasts *Toasts, log *zap.Logger) *FriendStore {
	if log == nil {
		log = zap.NewNop()
	}
	if toasts == nil {
		toasts = NewToasts()
	}
	s := &FriendStore{
		backend:  b,
		user:     currentUser,
		profiles: profiles,
		toasts:   toasts,
		log:      log,
		Retry:    retry.Policy{Retryable: backend.IsRetryable, Log: log},
	}
	s.resetLocked()
	return s
}

// FetchAll hydrates friends, requests and blocks. The whole sequence is
// retried with backoff and jitter; exhausted retries set the store error and
// leave previously cached data untouched.
func (s *FriendStore) FetchAll(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	var friends []schema.Friend
	var requests []schema.FriendRequest
	var blocks []schema.BlockedUser

	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		if friends, err = s.backend.Friends(ctx); err != nil {
			return err
		}
		if requests, err = s.backend.FriendRequests(ctx); err != nil {
			return err
		}
		blocks, err = s.backend.BlockedUsers(ctx)
		return err
	})
	if err != nil {
		s.setErr(err)
		return err
	}

	me := s.user()

	s.mu.Lock()
	s.friends = make(map[uint]schema.Friend, len(friends))
	for _, f := range friends {
		s.friends[f.FriendID] = f
	}
	s.requests = make(map[requestKey]schema.FriendRequest, len(requests))
	s.rejectedSent = make(map[uint]struct{})
	for _, r := range requests {
		s.requests[requestKey{r.SenderID, r.ReceiverID}] = r
		if r.SenderID == me && r.Status == schema.RequestRejected {
			s.rejectedSent[r.ReceiverID] = struct{}{}
		}
	}
	s.blocked = make(map[uint]struct{}, len(blocks))
	for _, b := range blocks {
		s.blocked[b.BlockedID] = struct{}{}
	}
	s.err = nil
	s.mu.Unlock()
	return nil
}

// SendRequest sends a friend request. A receiver who rejected a previous
// request, or one the current user blocked, is refused locally.
func (s *FriendStore) SendRequest(ctx context.Context, receiverID uint) error {
	s.mu.RLock()
	_, rejected := s.rejectedSent[receiverID]
	_, blocked := s.blocked[receiverID]
	s.mu.RUnlock()
	if rejected || blocked {
		return ErrRequestBlocked
	}

	request, err := s.backend.SendFriendRequest(ctx, receiverID)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.requests[requestKey{request.SenderID, request.ReceiverID}] = *request
	s.err = nil
	s.mu.Unlock()

	s.toasts.Push("Friend request sent")
	return nil
}

// Accept accepts a pending request from the sender and caches the new
// friendship.
func (s *FriendStore) Accept(ctx context.Context, senderID uint) error {
	request, err := s.backend.AcceptFriendRequest(ctx, senderID)
	if err != nil {
		s.setErr(err)
		return err
	}

	me := s.user()

	s.mu.Lock()
	s.requests[requestKey{request.SenderID, request.ReceiverID}] = *request
	s.friends[senderID] = schema.Friend{UserID: me, FriendID: senderID, CreatedAt: request.CreatedAt}
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Reject rejects a pending request from the sender. The rejection persists
// server-side so the sender cannot re-request.
func (s *FriendStore) Reject(ctx context.Context, senderID uint) error {
	request, err := s.backend.RejectFriendRequest(ctx, senderID)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.requests[requestKey{request.SenderID, request.ReceiverID}] = *request
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Remove deletes a friendship in both directions.
func (s *FriendStore) Remove(ctx context.Context, friendID uint) error {
	if err := s.backend.RemoveFriend(ctx, friendID); err != nil {
		s.setErr(err)
		return err
	}

	me := s.user()

	s.mu.Lock()
	delete(s.friends, friendID)
	delete(s.requests, requestKey{me, friendID})
	delete(s.requests, requestKey{friendID, me})
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Block blocks a user.
func (s *FriendStore) Block(ctx context.Context, userID uint) error {
	block, err := s.backend.BlockUser(ctx, userID)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.blocked[block.BlockedID] = struct{}{}
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Friends returns the cached friend rows.
func (s *FriendStore) Friends() []schema.Friend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.Friend, 0, len(s.friends))
	for _, f := range s.friends {
		out = append(out, f)
	}
	return out
}

// IncomingRequests returns pending requests addressed to the current user.
func (s *FriendStore) IncomingRequests() []schema.FriendRequest {
	me := s.user()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schema.FriendRequest
	for _, r := range s.requests {
		if r.ReceiverID == me && r.Status == schema.RequestPending {
			out = append(out, r)
		}
	}
	return out
}

// HandleChange patches the cache from a change event on any friend table.
func (s *FriendStore) HandleChange(ev hub.ChangeEvent) {
	switch ev.Table {
	case "friend_requests":
		s.handleRequestChange(ev)
	case "friends":
		s.handleFriendChange(ev)
	case "blocked_users":
		s.handleBlockChange(ev)
	}
}

// SubscribeChanges registers this store's tables on a subscriber.
func (s *FriendStore) SubscribeChanges(sub *realtime.Subscriber) {
	sub.On("friend_requests", s.HandleChange)
	sub.On("friends", s.HandleChange)
	sub.On("blocked_users", s.HandleChange)
}

func (s *FriendStore) handleRequestChange(ev hub.ChangeEvent) {
	me := s.user()

	switch ev.Type {
	case hub.ChangeInsert:
		var request schema.FriendRequest
		if err := json.Unmarshal(ev.New, &request); err != nil {
			s.log.Warn("dropping malformed friend request event", zap.Error(err))
			return
		}

		s.mu.Lock()
		s.requests[requestKey{request.SenderID, request.ReceiverID}] = request
		s.mu.Unlock()

		if request.ReceiverID == me {
			// The payload is row-shaped; materialize the sender so the UI
			// can name them.
			name := fmt.Sprintf("user %d", request.SenderID)
			if s.profiles != nil {
				if err := s.profiles.Fetch(context.Background(), []uint{request.SenderID}); err == nil {
					if p, ok := s.profiles.Get(request.SenderID); ok {
						name = p.Username
					}
				}
			}
			s.toasts.Push("New friend request from " + name)
		}
	case hub.ChangeUpdate:
		var request schema.FriendRequest
		if err := json.Unmarshal(ev.New, &request); err != nil {
			s.log.Warn("dropping malformed friend request event", zap.Error(err))
			return
		}

		s.mu.Lock()
		s.requests[requestKey{request.SenderID, request.ReceiverID}] = request
		if request.SenderID == me && request.Status == schema.RequestRejected {
			s.rejectedSent[request.ReceiverID] = struct{}{}
		}
		if request.ReceiverID == me && request.Status == schema.RequestAccepted {
			s.friends[request.SenderID] = schema.Friend{UserID: me, FriendID: request.SenderID, CreatedAt: request.CreatedAt}
		}
		s.mu.Unlock()
	case hub.ChangeDelete:
		// Request deletes arrive with the old row.
		var old schema.FriendRequest
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		s.mu.Lock()
		delete(s.requests, requestKey{old.SenderID, old.ReceiverID})
		s.mu.Unlock()
	}
}

func (s *FriendStore) handleFriendChange(ev hub.ChangeEvent) {
	me := s.user()

	switch ev.Type {
	case hub.ChangeInsert:
		var friend schema.Friend
		if err := json.Unmarshal(ev.New, &friend); err != nil {
			s.log.Warn("dropping malformed friend event", zap.Error(err))
			return
		}
		if friend.UserID != me {
			return
		}
		s.mu.Lock()
		s.friends[friend.FriendID] = friend
		s.mu.Unlock()
		s.toasts.Push("You have a new friend")
	case hub.ChangeDelete:
		var old schema.Friend
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		if old.UserID != me {
			return
		}
		s.mu.Lock()
		delete(s.friends, old.FriendID)
		s.mu.Unlock()
	}
}

func (s *FriendStore) handleBlockChange(ev hub.ChangeEvent) {
	if ev.Type != hub.ChangeInsert {
		return
	}
	var block schema.BlockedUser
	if err := json.Unmarshal(ev.New, &block); err != nil {
		return
	}
	if block.BlockerID != s.user() {
		return
	}
	s.mu.Lock()
	s.blocked[block.BlockedID] = struct{}{}
	s.mu.Unlock()
}

// Loading reports whether a hydration is in flight.
func (s *FriendStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last failure.
func (s *FriendStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Reset wipes the cache, e.g. on sign-out.
func (s *FriendStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *FriendStore) resetLocked() {
	s.friends = make(map[uint]schema.Friend)
	s.requests = make(map[requestKey]schema.FriendRequest)
	s.rejectedSent = make(map[uint]struct{})
	s.blocked = make(map[uint]struct{})
	s.loading = false
	s.err = nil
}

func (s *FriendStore) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

func (s *FriendStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
