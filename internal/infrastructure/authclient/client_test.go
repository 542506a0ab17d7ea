package authclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasktracker/task-system/internal/core/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 200 * time.Millisecond}, zerolog.Nop()), &calls
}

func TestClient_Verify_OK(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/users/me", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":7,"username":"alice","role":"client"}`))
	})

	user, err := c.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.PublicUser{ID: 7, Username: "alice", Role: domain.RoleClient}, *user)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClient_Verify_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthenticated},
		{http.StatusForbidden, domain.ErrForbidden},
		{http.StatusNotFound, domain.ErrVerifierUnavailable},
	}
	for _, tc := range cases {
		c, calls := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := c.Verify(context.Background(), "tok")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls), "status %d must not be retried", tc.status)
	}
}

func TestClient_Verify_RetriesServerErrors(t *testing.T) {
	var n int32
	c, calls := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"user_id":1,"username":"root","role":"admin"}`))
	})

	user, err := c.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestClient_Verify_GivesUpAsUnavailable(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrVerifierUnavailable)
	assert.False(t, domain.IsAuthFailure(err), "an outage must never look like bad credentials")
	assert.Equal(t, int32(1+maxRetries), atomic.LoadInt32(calls))
}

func TestClient_Verify_Timeout(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	start := time.Now()
	_, err := c.Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrVerifierUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_Verify_Unreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	_, err := c.Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrVerifierUnavailable)
}

func TestClient_Verify_BadBody(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"user_id":0}`))
	})
	_, err := c.Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrVerifierUnavailable)
}

func TestClient_Verify_EmptyToken(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"}, zerolog.Nop())
	_, err := c.Verify(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
