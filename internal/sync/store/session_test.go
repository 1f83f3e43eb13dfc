package store

import (
	"context"
	"testing"

	"taskmate/backend/internal/sync/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionBackend struct {
	token string
}

func (f *fakeSessionBackend) Register(_ context.Context, input schema.RegisterInput) (*schema.Session, error) {
	return &schema.Session{Token: "fresh", UserID: 1}, nil
}

func (f *fakeSessionBackend) SignIn(_ context.Context, input schema.LoginInput) (*schema.Session, error) {
	return &schema.Session{Token: "signed-in", UserID: 1}, nil
}

func (f *fakeSessionBackend) MarkReady(context.Context) (*schema.Session, error) {
	return &schema.Session{Token: "ready", UserID: 1, IsReady: true}, nil
}

func (f *fakeSessionBackend) SetToken(token string) { f.token = token }

func TestSignInInstallsToken(t *testing.T) {
	b := &fakeSessionBackend{}
	s := NewSessionStore(b, nil)

	require.NoError(t, s.SignIn(context.Background(), schema.LoginInput{Login: "ana", Password: "secret"}))
	assert.Equal(t, "signed-in", b.token)
	assert.Equal(t, uint(1), s.UserID())

	require.NoError(t, s.MarkReady(context.Background()))
	assert.Equal(t, "ready", b.token, "onboarding reissues the token")
	assert.True(t, s.Current().IsReady)
}

func TestSignOutResetsDependentStores(t *testing.T) {
	b := &fakeSessionBackend{}
	s := NewSessionStore(b, nil)

	tasks := newTestTaskStore(seededBackend())
	require.NoError(t, tasks.FetchAll(context.Background()))
	require.NotEmpty(t, tasks.Tasks())

	profiles := NewProfileStore(nil, nil)
	s.ResetOnSignOut(tasks, profiles)

	require.NoError(t, s.SignIn(context.Background(), schema.LoginInput{Login: "ana", Password: "secret"}))
	s.SignOut()

	assert.Nil(t, s.Current())
	assert.Equal(t, "", b.token)
	assert.Empty(t, tasks.Tasks(), "no cached rows survive a user switch")
}
