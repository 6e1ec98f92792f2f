package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ncastellani/parlor/internal/database"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestAuthMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockParlorRepository{})

	var gotUserId int
	var called bool
	next := func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserId, _ = UserId(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	t.Run("missing cookie", func(t *testing.T) {
		called = false
		rr := httptest.NewRecorder()
		app.authMiddleware(next)(rr, httptest.NewRequest(http.MethodGet, "/api/account", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.False(t, called, "handler must not run without a session")
	})

	t.Run("invalid token", func(t *testing.T) {
		called = false
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "garbage"})

		app.authMiddleware(next)(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.False(t, called)
	})

	t.Run("valid token passes the user id through", func(t *testing.T) {
		token, err := app.createJwtForSession(42, time.Hour)
		assert.NoError(t, err)

		called = false
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})

		app.authMiddleware(next)(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, called)
		assert.Equal(t, 42, gotUserId)
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
	})
}

func TestAdminMiddleware(t *testing.T) {
	next := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	request := func(t *testing.T, app *ParlorApp, userId int) *http.Request {
		t.Helper()
		token, err := app.createJwtForSession(userId, time.Hour)
		assert.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/admin/ban/1", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
		return req
	}

	t.Run("non-admin forbidden", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(database.User{Id: 1}, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		app.adminMiddleware(next)(rr, request(t, app, 1))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 9).Return(database.User{Id: 9, IsAdmin: true}, nil).Once()

		app := newTestApp(t, db)
		rr := httptest.NewRecorder()
		app.adminMiddleware(next)(rr, request(t, app, 9))

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockParlorRepository{})
	app.limiter = newRateLimiter(rate.Limit(1), 2)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := app.rateLimitMiddleware(next)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "request %d within burst", i)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// a different client gets its own limiter
	otherReq := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	otherReq.RemoteAddr = "10.0.0.2:1234"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, otherReq)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestErrorHandlerRecoversPanic(t *testing.T) {
	app := newTestApp(t, &database.MockParlorRepository{})

	handler := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
