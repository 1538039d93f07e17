package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/api"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/service"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/sse"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/storage"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/testutil"
)

const testSecret = "test-secret"

type testEnv struct {
	router    chi.Router
	registry  *sse.Registry
	svc       service.NotificationService
	reminders *storage.SQLiteReminderStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, _, err := storage.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	registry := sse.NewRegistry(0, testutil.Logger(t))
	t.Cleanup(registry.DisconnectAll)

	store := storage.NewSQLiteNotificationStore(db)
	reminders := storage.NewSQLiteReminderStore(db)
	svc := service.NewNotificationService(store, registry, nil, testutil.Logger(t))

	r := chi.NewRouter()
	api.New(svc, registry, reminders, testSecret, testutil.Logger(t)).Mount(r)

	return &testEnv{router: r, registry: registry, svc: svc, reminders: reminders}
}

// do runs an authenticated request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, target, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		token, err := api.GenerateToken(testSecret, userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/notifications", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := api.GenerateToken("other-secret", "u1")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCreateNotification(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/notifications", "sender", map[string]string{
		"recipientId": "u1",
		"title":       "Project Update",
		"message":     "Phase 2 approved",
		"type":        "PROJECT_UPDATE",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	n := decode[storage.Notification](t, rec)
	assert.Positive(t, n.ID)
	assert.Equal(t, "u1", n.RecipientID)
	assert.Equal(t, "PROJECT_UPDATE", n.Kind)
	assert.False(t, n.IsRead)
}

func TestCreateNotificationValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("invalid JSON", func(t *testing.T) {
		token, err := api.GenerateToken(testSecret, "u1")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing recipient", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/notifications", "u1", map[string]string{
			"title": "t", "message": "m", "type": "SYSTEM",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListAndReadLifecycle(t *testing.T) {
	env := newTestEnv(t)
	create := func(recipient string) storage.Notification {
		rec := env.do(t, http.MethodPost, "/notifications", "admin", map[string]string{
			"recipientId": recipient, "title": "t", "message": "m", "type": "SYSTEM",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		return decode[storage.Notification](t, rec)
	}

	n1 := create("u1")
	create("u1")
	create("u2")

	t.Run("list is scoped to the caller", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/notifications", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[storage.Page](t, rec)
		assert.Len(t, page.Items, 2)
		assert.EqualValues(t, 2, page.TotalCount)
	})

	t.Run("unread count", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/notifications/unread/count", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]int64](t, rec)
		assert.EqualValues(t, 2, body["count"])
	})

	t.Run("foreign mark read is forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, fmt.Sprintf("/notifications/%d/read", n1.ID), "u2", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner marks read", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, fmt.Sprintf("/notifications/%d/read", n1.ID), "u1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, "/notifications/unread/count", "u1", nil)
		body := decode[map[string]int64](t, rec)
		assert.EqualValues(t, 1, body["count"])
	})

	t.Run("mark all read", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/notifications/read-all", "u1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, "/notifications/unread", "u1", nil)
		items := decode[[]storage.Notification](t, rec)
		assert.Empty(t, items)
	})

	t.Run("missing id is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/notifications/99999/read", "u1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id is 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/notifications/abc/read", "u1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/notifications", "admin", map[string]string{
		"recipientId": "u1", "title": "t", "message": "m", "type": "SYSTEM",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	n := decode[storage.Notification](t, rec)

	t.Run("foreign delete is forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, fmt.Sprintf("/notifications/%d", n.ID), "u2", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner deletes", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, fmt.Sprintf("/notifications/%d", n.ID), "u1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodDelete, fmt.Sprintf("/notifications/%d", n.ID), "u1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete all", func(t *testing.T) {
		env.do(t, http.MethodPost, "/notifications", "admin", map[string]string{
			"recipientId": "u1", "title": "t", "message": "m", "type": "SYSTEM",
		})
		rec := env.do(t, http.MethodDelete, "/notifications", "u1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, "/notifications", "u1", nil)
		page := decode[storage.Page](t, rec)
		assert.Empty(t, page.Items)
	})
}

func TestBulkSend(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty recipient list", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/notifications/bulk", "admin", map[string]any{
			"recipientIds": []string{}, "title": "t", "message": "m", "type": "SYSTEM",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepted", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/notifications/bulk", "admin", map[string]any{
			"recipientIds": []string{"a", "b"}, "title": "t", "message": "m", "type": "SYSTEM",
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		for _, id := range []string{"a", "b"} {
			count, err := env.svc.GetUnreadCount(context.Background(), id)
			require.NoError(t, err)
			assert.EqualValues(t, 1, count)
		}
	})
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.registry.OpenChannel("u1")
	env.registry.OpenChannel("u1")
	env.registry.OpenChannel("u2")

	t.Run("connection stats", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/admin/connections?recipientId=u1", "admin", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		stats := decode[map[string]any](t, rec)
		assert.EqualValues(t, 2, stats["totalConnectedUsers"])
		assert.EqualValues(t, 2, stats["connectionCount"])
	})

	t.Run("broadcast to connected users", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/admin/broadcast", "admin", map[string]any{
			"title": "Maintenance", "message": "m", "type": "SYSTEM",
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		for _, id := range []string{"u1", "u2"} {
			count, err := env.svc.GetUnreadCount(context.Background(), id)
			require.NoError(t, err)
			assert.EqualValues(t, 1, count, "recipient %s", id)
		}
	})

	t.Run("disconnect one recipient", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/admin/disconnect", "admin", map[string]string{
			"recipientId": "u1",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, env.registry.ConnectionCount("u1"))
		assert.Equal(t, 1, env.registry.ConnectionCount("u2"))
	})

	t.Run("disconnect all", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/admin/disconnect", "admin", map[string]string{})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, env.registry.TotalConnectedUsers())
	})
}

// nextEvent waits for the next envelope on ch.
func nextEvent(t *testing.T, ch *sse.Channel) sse.Envelope {
	t.Helper()
	select {
	case env := <-ch.Events():
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel event")
		return sse.Envelope{}
	}
}

func TestTransientBroadcast(t *testing.T) {
	env := newTestEnv(t)

	c1 := env.registry.OpenChannel("u1")
	c2 := env.registry.OpenChannel("u2")
	require.Equal(t, sse.EventConnected, nextEvent(t, c1).Event)
	require.Equal(t, sse.EventConnected, nextEvent(t, c2).Event)

	rec := env.do(t, http.MethodPost, "/admin/broadcast", "admin", map[string]any{
		"title": "Maintenance", "message": "Back in 5 minutes", "type": "SYSTEM", "transient": true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["transient"])
	assert.EqualValues(t, 2, body["recipients"])

	for _, ch := range []*sse.Channel{c1, c2} {
		got := nextEvent(t, ch)
		assert.Equal(t, sse.EventNotification, got.Event)
	}

	// Nothing was persisted: transient broadcasts leave no unread records.
	for _, id := range []string{"u1", "u2"} {
		count, err := env.svc.GetUnreadCount(context.Background(), id)
		require.NoError(t, err)
		assert.Zero(t, count, "recipient %s", id)
	}
}

func TestScheduleReminder(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing recipient", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/admin/reminders", "admin", map[string]any{
			"title": "Appointment Reminder", "remindAt": time.Now().UTC(),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing remindAt", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/admin/reminders", "admin", map[string]any{
			"recipientId": "u1", "title": "Appointment Reminder",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("queued and claimable", func(t *testing.T) {
		remindAt := time.Now().UTC().Add(30 * time.Minute)
		rec := env.do(t, http.MethodPost, "/admin/reminders", "admin", map[string]any{
			"recipientId": "u1",
			"title":       "Appointment Reminder",
			"message":     "Checkup at 3pm",
			"remindAt":    remindAt,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decode[storage.AppointmentReminder](t, rec)
		assert.Positive(t, created.ID)

		due, err := env.reminders.ClaimDue(context.Background(), remindAt.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "u1", due[0].RecipientID)
		assert.Equal(t, "Checkup at 3pm", due[0].Message)
	})
}

// streamRecorder is a ResponseRecorder whose body may be read while the
// handler goroutine is still writing to it.
type streamRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *streamRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResponseRecorder.Flush()
}

func (r *streamRecorder) bodyString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

// TestStreamDeliversEvents drives the SSE handler with a recorder, which
// implements http.Flusher, and checks the wire format of the pushed events.
func TestStreamDeliversEvents(t *testing.T) {
	env := newTestEnv(t)

	token, err := api.GenerateToken(testSecret, "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/notifications/stream", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := &streamRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.router.ServeHTTP(rec, req)
	}()

	// Wait for the channel to register, then push through the service.
	require.Eventually(t, func() bool {
		return env.registry.ConnectionCount("u1") == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, err = env.svc.CreateAndSend(context.Background(), service.CreateNotificationInput{
		RecipientID: "u1",
		Title:       "New Task",
		Message:     "You were assigned Task #42",
		Kind:        "TASK_ASSIGNED",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(rec.bodyString(), "event: notification")
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit on client disconnect")
	}

	body := rec.bodyString()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "Connected to notification stream")
	assert.Contains(t, body, `"title":"New Task"`)
	assert.Contains(t, body, `"type":"TASK_ASSIGNED"`)
	assert.Equal(t, 0, env.registry.ConnectionCount("u1"))
}
