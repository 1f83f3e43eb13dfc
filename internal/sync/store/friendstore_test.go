package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskmate/backend/internal/hub"
	"taskmate/backend/internal/sync/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFriendBackend struct {
	mu    sync.Mutex
	calls map[string]int

	friends  []schema.Friend
	requests []schema.FriendRequest
	blocks   []schema.BlockedUser
}

func newFakeFriendBackend() *fakeFriendBackend {
	return &fakeFriendBackend{calls: make(map[string]int)}
}

func (f *fakeFriendBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeFriendBackend) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeFriendBackend) Friends(context.Context) ([]schema.Friend, error) {
	f.record("Friends")
	return f.friends, nil
}

func (f *fakeFriendBackend) FriendRequests(context.Context) ([]schema.FriendRequest, error) {
	f.record("FriendRequests")
	return f.requests, nil
}

func (f *fakeFriendBackend) BlockedUsers(context.Context) ([]schema.BlockedUser, error) {
	f.record("BlockedUsers")
	return f.blocks, nil
}

func (f *fakeFriendBackend) SendFriendRequest(_ context.Context, receiverID uint) (*schema.FriendRequest, error) {
	f.record("SendFriendRequest")
	return &schema.FriendRequest{SenderID: 1, ReceiverID: receiverID, Status: schema.RequestPending, CreatedAt: time.Now()}, nil
}

func (f *fakeFriendBackend) AcceptFriendRequest(_ context.Context, senderID uint) (*schema.FriendRequest, error) {
	f.record("AcceptFriendRequest")
	return &schema.FriendRequest{SenderID: senderID, ReceiverID: 1, Status: schema.RequestAccepted, CreatedAt: time.Now()}, nil
}

func (f *fakeFriendBackend) RejectFriendRequest(_ context.Context, senderID uint) (*schema.FriendRequest, error) {
	f.record("RejectFriendRequest")
	return &schema.FriendRequest{SenderID: senderID, ReceiverID: 1, Status: schema.RequestRejected, CreatedAt: time.Now()}, nil
}

func (f *fakeFriendBackend) RemoveFriend(context.Context, uint) error {
	f.record("RemoveFriend")
	return nil
}

func (f *fakeFriendBackend) BlockUser(_ context.Context, userID uint) (*schema.BlockedUser, error) {
	f.record("BlockUser")
	return &schema.BlockedUser{BlockerID: 1, BlockedID: userID, CreatedAt: time.Now()}, nil
}

func newTestFriendStore(f *fakeFriendBackend) *FriendStore {
	s := NewFriendStore(f, me, nil, NewToasts(), nil)
	s.Retry = fastPolicy()
	return s
}

func TestFriendStoreFetchAllHydrates(t *testing.T) {
	f := newFakeFriendBackend()
	f.friends = []schema.Friend{{UserID: 1, FriendID: 2}}
	f.requests = []schema.FriendRequest{
		{SenderID: 3, ReceiverID: 1, Status: schema.RequestPending},
		{SenderID: 1, ReceiverID: 4, Status: schema.RequestRejected},
	}
	f.blocks = []schema.BlockedUser{{BlockerID: 1, BlockedID: 5}}
	s := newTestFriendStore(f)

	require.NoError(t, s.FetchAll(context.Background()))
	assert.Len(t, s.Friends(), 1)
	require.Len(t, s.IncomingRequests(), 1)
	assert.Equal(t, uint(3), s.IncomingRequests()[0].SenderID)
}

func TestSendRequestShortCircuitsAfterRejection(t *testing.T) {
	f := newFakeFriendBackend()
	f.requests = []schema.FriendRequest{
		{SenderID: 1, ReceiverID: 4, Status: schema.RequestRejected},
	}
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	err := s.SendRequest(context.Background(), 4)
	assert.ErrorIs(t, err, ErrRequestBlocked)
	assert.Equal(t, 0, f.count("SendFriendRequest"), "rejected receiver must not reach the network")

	// An untainted receiver goes through.
	require.NoError(t, s.SendRequest(context.Background(), 6))
	assert.Equal(t, 1, f.count("SendFriendRequest"))
}

func TestSendRequestShortCircuitsForBlockedUser(t *testing.T) {
	f := newFakeFriendBackend()
	f.blocks = []schema.BlockedUser{{BlockerID: 1, BlockedID: 5}}
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	err := s.SendRequest(context.Background(), 5)
	assert.ErrorIs(t, err, ErrRequestBlocked)
	assert.Equal(t, 0, f.count("SendFriendRequest"))
}

func TestAcceptCachesFriendship(t *testing.T) {
	f := newFakeFriendBackend()
	f.requests = []schema.FriendRequest{
		{SenderID: 3, ReceiverID: 1, Status: schema.RequestPending},
	}
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	require.NoError(t, s.Accept(context.Background(), 3))
	require.Len(t, s.Friends(), 1)
	assert.Equal(t, uint(3), s.Friends()[0].FriendID)
	assert.Empty(t, s.IncomingRequests(), "accepted request is no longer pending")
}

func TestRejectionEventTaintsFutureRequests(t *testing.T) {
	f := newFakeFriendBackend()
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	// The receiver rejected our request on another device; the update event
	// must arm the local short-circuit.
	s.HandleChange(event(t, "friend_requests", hub.ChangeUpdate,
		schema.FriendRequest{SenderID: 1, ReceiverID: 7, Status: schema.RequestRejected}, nil))

	err := s.SendRequest(context.Background(), 7)
	assert.ErrorIs(t, err, ErrRequestBlocked)
	assert.Equal(t, 0, f.count("SendFriendRequest"))
}

func TestRequestDeleteEventEvictsCache(t *testing.T) {
	f := newFakeFriendBackend()
	f.requests = []schema.FriendRequest{
		{SenderID: 2, ReceiverID: 1, Status: schema.RequestAccepted},
		{SenderID: 3, ReceiverID: 1, Status: schema.RequestPending},
	}
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	// Delete events carry only the old row.
	s.HandleChange(event(t, "friend_requests", hub.ChangeDelete, nil,
		schema.FriendRequest{SenderID: 2, ReceiverID: 1, Status: schema.RequestAccepted}))

	s.mu.RLock()
	_, cached := s.requests[requestKey{2, 1}]
	s.mu.RUnlock()
	assert.False(t, cached, "deleted request must leave the cache")

	assert.Len(t, s.IncomingRequests(), 1, "other requests survive")
}

func TestIncomingRequestEventToasts(t *testing.T) {
	f := newFakeFriendBackend()
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	s.HandleChange(event(t, "friend_requests", hub.ChangeInsert,
		schema.FriendRequest{SenderID: 9, ReceiverID: 1, Status: schema.RequestPending}, nil))

	require.Len(t, s.IncomingRequests(), 1)
	toasts := s.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Contains(t, toasts[0], "friend request")
}

func TestAcceptedEventCachesFriendOnReceiverSide(t *testing.T) {
	f := newFakeFriendBackend()
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	s.HandleChange(event(t, "friends", hub.ChangeInsert,
		schema.Friend{UserID: 1, FriendID: 8}, nil))

	require.Len(t, s.Friends(), 1)
	assert.Equal(t, uint(8), s.Friends()[0].FriendID)

	// The mirrored direction belongs to the other user and is ignored.
	s.HandleChange(event(t, "friends", hub.ChangeInsert,
		schema.Friend{UserID: 8, FriendID: 1}, nil))
	assert.Len(t, s.Friends(), 1)
}

func TestRemoveDropsBothSidesLocally(t *testing.T) {
	f := newFakeFriendBackend()
	f.friends = []schema.Friend{{UserID: 1, FriendID: 2}}
	f.requests = []schema.FriendRequest{
		{SenderID: 2, ReceiverID: 1, Status: schema.RequestAccepted},
	}
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	require.NoError(t, s.Remove(context.Background(), 2))
	assert.Empty(t, s.Friends())
	assert.Equal(t, 1, f.count("RemoveFriend"))
}

func TestBlockClearsPathForShortCircuit(t *testing.T) {
	f := newFakeFriendBackend()
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	require.NoError(t, s.Block(context.Background(), 5))
	err := s.SendRequest(context.Background(), 5)
	assert.ErrorIs(t, err, ErrRequestBlocked)
}

func TestFriendStoreReset(t *testing.T) {
	f := newFakeFriendBackend()
	f.friends = []schema.Friend{{UserID: 1, FriendID: 2}}
	f.requests = []schema.FriendRequest{
		{SenderID: 1, ReceiverID: 4, Status: schema.RequestRejected},
	}
	s := newTestFriendStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	s.Reset()
	assert.Empty(t, s.Friends())

	// The rejection taint belongs to the old session and is gone too.
	require.NoError(t, s.SendRequest(context.Background(), 4))
	assert.Equal(t, 1, f.count("SendFriendRequest"))
}
