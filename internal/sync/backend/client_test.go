package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskmate/backend/internal/chat"
	"taskmate/backend/internal/sync/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatMessageFixture() chat.Message {
	return chat.Message{
		CustomType:  "task",
		Content:     "Plan the trip",
		Attachments: []chat.Attachment{{Type: "task", ID: 42}},
	}
}

func TestSignInDecodesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		json.NewEncoder(w).Encode(schema.Session{Token: "jwt", UserID: 7, IsReady: true})
	}))
	defer srv.Close()

	c := New(srv.URL)
	session, err := c.SignIn(context.Background(), schema.LoginInput{Login: "ana", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, uint(7), session.UserID)
	assert.True(t, session.IsReady)
}

func TestSignInRejectsInvalidInputBeforeRequest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SignIn(context.Background(), schema.LoginInput{})
	require.Error(t, err)

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindValidation, berr.Kind)
	assert.Equal(t, 0, hits, "invalid input must not reach the network")
}

func TestServerErrorsAreClassified(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
	}))
	defer srv.Close()

	c := New(srv.URL)

	_, err := c.Tasks(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err), "5xx is transient")

	status = http.StatusForbidden
	_, err = c.Tasks(context.Background())
	require.Error(t, err)
	assert.False(t, IsRetryable(err), "4xx is permanent")

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindPermanent, berr.Kind)
	assert.Equal(t, http.StatusForbidden, berr.Status)
	assert.Equal(t, "nope", berr.Message)
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(srv.URL)
	_, err := c.Friends(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestMalformedResponseFailsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Row with a zero user_id fails the fetch schema.
		json.NewEncoder(w).Encode([]map[string]any{{"user_id": 0, "username": ""}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Profiles(context.Background(), []uint{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrValidation)
	assert.False(t, IsRetryable(err))
}

func TestRelatedFansOutPerTable(t *testing.T) {
	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		assert.Equal(t, "1,2", r.URL.Query().Get("task_ids"))
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	related, err := c.Related(context.Background(), []uint{1, 2})
	require.NoError(t, err)
	require.NotNil(t, related)

	close(paths)
	seen := make(map[string]bool)
	for p := range paths {
		seen[p] = true
	}
	assert.Equal(t, map[string]bool{
		"/task-assignees":    true,
		"/task-tags":         true,
		"/task-dependencies": true,
		"/milestones":        true,
	}, seen)
}

func TestRelatedFailsWholesale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/milestones" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Related(context.Background(), []uint{1})
	require.Error(t, err)
}

func TestRelatedEmptyInputSkipsNetwork(t *testing.T) {
	c := New("http://127.0.0.1:1")
	related, err := c.Related(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, related.Assignees)
}

func TestBearerTokenIsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken("tok")
	_, err := c.Friends(context.Background())
	require.NoError(t, err)
}

func TestCreateTaskValidatesBundleResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Task with no id fails fetch validation.
		w.Write([]byte(`{"task":{"id":0,"title":"x","creator_id":1}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreateTaskWithRelated(context.Background(), schema.TaskInsert{Title: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrValidation)
}

func TestChannelPostsTaskMessage(t *testing.T) {
	var got struct {
		ChannelID  string `json:"channel_id"`
		CustomType string `json:"custom_type"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ch := c.Channel("room-1")
	require.Equal(t, "room-1", ch.ID())

	err := ch.SendMessage(context.Background(), chatMessageFixture())
	require.NoError(t, err)
	assert.Equal(t, "room-1", got.ChannelID)
	assert.Equal(t, "task", got.CustomType)
}

func TestIsRetryableDefaultsToTrueForUntaggedErrors(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("who knows")))
	assert.False(t, IsRetryable(&Error{Kind: KindValidation}))
	assert.True(t, IsRetryable(&Error{Kind: KindTransient}))
}
