package store

import (
	"context"
	"encoding/json"
	"sync"

	"taskmate/backend/internal/hub"
	"taskmate/backend/internal/sync/realtime"
	"taskmate/backend/internal/sync/schema"

	"go.uber.org/zap"
)

// ProfileBackend is the slice of the access layer the profile store needs.
type ProfileBackend interface {
	Profiles(ctx context.Context, userIDs []uint) ([]schema.UserProfile, error)
	UploadAvatar(ctx context.Context, input schema.AvatarInput) (*schema.UserProfile, error)
}

// ProfileStore caches public user profiles by user id.
type ProfileStore struct {
	mu      sync.RWMutex
	backend ProfileBackend
	log     *zap.Logger

	profiles map[uint]schema.UserProfile
	loading  bool
	err      error
}

// NewProfileStore creates an empty profile cache.
func NewProfileStore(backend ProfileBackend, log *zap.Logger) *ProfileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileStore{
		backend:  backend,
		log:      log,
		profiles: make(map[uint]schema.UserProfile),
	}
}

// Fetch loads the profiles for the given ids that are not already cached.
func (s *ProfileStore) Fetch(ctx context.Context, userIDs []uint) error {
	missing := s.missing(userIDs)
	if len(missing) == 0 {
		return nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	profiles, err := s.backend.Profiles(ctx, missing)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Get returns a cached profile. The second value reports a cache hit; a miss
// renders as a loading placeholder until Fetch completes.
func (s *ProfileStore) Get(userID uint) (schema.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok
}

// UploadAvatar stores a new avatar image and patches the cached profile.
func (s *ProfileStore) UploadAvatar(ctx context.Context, data string) error {
	profile, err := s.backend.UploadAvatar(ctx, schema.AvatarInput{Data: data})
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.profiles[profile.UserID] = *profile
	s.err = nil
	s.mu.Unlock()
	return nil
}

// HandleChange patches the cache from a profiles change event. Updates for
// uncached profiles are dropped.
func (s *ProfileStore) HandleChange(ev hub.ChangeEvent) {
	if ev.Table != "profiles" || ev.Type != hub.ChangeUpdate {
		return
	}

	var profile schema.UserProfile
	if err := json.Unmarshal(ev.New, &profile); err != nil {
		s.log.Warn("dropping malformed profile event", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.UserID]; !ok {
		return
	}
	s.profiles[profile.UserID] = profile
}

// SubscribeChanges registers this store's tables on a subscriber.
func (s *ProfileStore) SubscribeChanges(sub *realtime.Subscriber) {
	sub.On("profiles", s.HandleChange)
}

// Loading reports whether a fetch is in flight.
func (s *ProfileStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last fetch failure.
func (s *ProfileStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Reset wipes the cache, e.g. on sign-out.
func (s *ProfileStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = make(map[uint]schema.UserProfile)
	s.loading = false
	s.err = nil
}

func (s *ProfileStore) missing(userIDs []uint) []uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []uint
	for _, id := range userIDs {
		if _, ok := s.profiles[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func (s *ProfileStore) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

func (s *ProfileStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
