package notif

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gocampus/internal/common"
	"gocampus/internal/dbmysql"
)

func newTestRouter(t *testing.T, store *MockNotificationStore) *mux.Router {
	t.Helper()
	svc := NewNotificationService(testConfig(), store, common.NopLogger())
	t.Cleanup(svc.Shutdown)

	r := mux.NewRouter()
	NewNotificationHandler(svc, common.NopLogger()).RegisterRoutes(r)
	return r
}

func authed(req *http.Request, userID uint64) *http.Request {
	ctx := common.WithIdentity(req.Context(), common.Identity{UserID: userID, Handle: "u"})
	return req.WithContext(ctx)
}

func TestNotificationHandler_List(t *testing.T) {
	store := &MockNotificationStore{}
	store.On("ByUserID", mock.Anything, uint64(5), 10, 0).
		Return([]*dbmysql.Notification{{ID: 1, UserID: 5, Header: "h"}}, nil)
	r := newTestRouter(t, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/notifications?limit=10", nil), 5))

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 1)
}

func TestNotificationHandler_Unauthenticated(t *testing.T) {
	r := newTestRouter(t, &MockNotificationStore{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationHandler_UnreadCount(t *testing.T) {
	store := &MockNotificationStore{}
	store.On("UnreadCount", mock.Anything, uint64(5)).Return(int64(3), nil)
	r := newTestRouter(t, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/notifications/unread-count", nil), 5))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unreadCount":3}`, rec.Body.String())
}

func TestNotificationHandler_MarkAsRead(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		wantCode int
	}{
		{"ok", nil, http.StatusNoContent},
		{"not found", common.NotFound("notification not found"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockNotificationStore{}
			store.On("MarkAsRead", mock.Anything, uint64(11), uint64(5)).Return(tt.storeErr)
			r := newTestRouter(t, store)

			req := httptest.NewRequest(http.MethodPut, "/notifications/11/read", nil).WithContext(context.Background())
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, authed(req, 5))

			assert.Equal(t, tt.wantCode, rec.Code)
			store.AssertExpectations(t)
		})
	}
}
