package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/tasktracker/task-system/internal/core/domain"
)

type stubVerifier struct {
	verifyFn func(ctx context.Context, token string) (*domain.PublicUser, error)
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*domain.PublicUser, error) {
	return s.verifyFn(ctx, token)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	verifier := &stubVerifier{verifyFn: func(_ context.Context, token string) (*domain.PublicUser, error) {
		if token != "good-token" {
			t.Fatalf("unexpected token %q", token)
		}
		return &domain.PublicUser{ID: 7, Username: "alice", Role: domain.RoleClient}, nil
	}}

	called := false
	handler := Auth(verifier)(func(c echo.Context) error {
		called = true
		user := CurrentUser(c)
		if user == nil || user.Username != "alice" || user.ID != 7 {
			t.Fatalf("user not set: %+v", user)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	verifier := &stubVerifier{verifyFn: func(context.Context, string) (*domain.PublicUser, error) {
		t.Fatalf("verifier should not be called")
		return nil, nil
	}}
	handler := Auth(verifier)(func(c echo.Context) error {
		t.Fatalf("should not reach next")
		return nil
	})

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_InvalidHeaderFormat(t *testing.T) {
	for _, header := range []string{"Token abc", "Bearer", "Bearer   "} {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := Auth(&stubVerifier{})(func(c echo.Context) error {
			t.Fatalf("should not reach next")
			return nil
		})

		if err := handler(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestAuthMiddleware_VerifierErrorPropagates(t *testing.T) {
	cases := []error{domain.ErrTokenExpired, domain.ErrUnauthenticated, domain.ErrVerifierUnavailable}
	for _, want := range cases {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer whatever")
		c := e.NewContext(req, httptest.NewRecorder())

		verifier := &stubVerifier{verifyFn: func(context.Context, string) (*domain.PublicUser, error) {
			return nil, want
		}}
		handler := Auth(verifier)(func(c echo.Context) error {
			t.Fatalf("should not reach next")
			return nil
		})

		if err := handler(c); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}
