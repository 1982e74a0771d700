package webdriver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrun/gridrun/lib/testutils"
)

func TestWaitForElement(t *testing.T) {
	t.Parallel()

	t.Run("found after a few polls", func(t *testing.T) {
		t.Parallel()
		var attempts int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/session/abc/element", r.URL.Path)
			if atomic.AddInt64(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusNotFound)
				fprint(t, w, `{"value": {"error": "no such element", "message": "not yet"}}`)
				return
			}
			fprint(t, w, `{"value": {"element-6066-11e4-a52e-4f735466cecf": "el-1"}}`)
		}))
		defer server.Close()

		client := NewClient(testutils.NewLogger(t), "", "", server.URL, time.Second)
		sess := &Session{client: client, id: "abc"}

		el, err := sess.WaitForElement(context.Background(), "#qunit-testresult .passed", time.Second, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "el-1", el.id)
		assert.EqualValues(t, 3, atomic.LoadInt64(&attempts))
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fprint(t, w, `{"value": {"error": "no such element", "message": "nope"}}`)
		}))
		defer server.Close()

		client := NewClient(testutils.NewLogger(t), "", "", server.URL, time.Second)
		sess := &Session{client: client, id: "abc"}

		_, err := sess.WaitForElement(context.Background(), ".missing", 10*time.Millisecond, time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out waiting for element")
	})

	t.Run("non-retriable error aborts", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fprint(t, w, `{"value": {"error": "invalid session id", "message": "gone"}}`)
		}))
		defer server.Close()

		client := NewClient(testutils.NewLogger(t), "", "", server.URL, time.Second)
		sess := &Session{client: client, id: "abc"}

		_, err := sess.WaitForElement(context.Background(), ".x", time.Second, time.Millisecond)
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "invalid session id", cmdErr.Code)
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fprint(t, w, `{"value": {"error": "no such element", "message": "nope"}}`)
		}))
		defer server.Close()

		client := NewClient(testutils.NewLogger(t), "", "", server.URL, time.Second)
		sess := &Session{client: client, id: "abc"}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := sess.WaitForElement(ctx, ".x", time.Second, 50*time.Millisecond)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestElementText(t *testing.T) {
	t.Parallel()

	t.Run("reads text", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/session/abc/element/el-1/text", r.URL.Path)
			fprint(t, w, `{"value": "128"}`)
		}))
		defer server.Close()

		client := NewClient(testutils.NewLogger(t), "", "", server.URL, time.Second)
		el := &Element{session: &Session{client: client, id: "abc"}, id: "el-1"}

		text, err := el.Text(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "128", text)
	})

	t.Run("stale element fault", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fprint(t, w, `{"value": {"error": "stale element reference", "message": "node replaced"}}`)
		}))
		defer server.Close()

		client := NewClient(testutils.NewLogger(t), "", "", server.URL, time.Second)
		el := &Element{session: &Session{client: client, id: "abc"}, id: "el-1"}

		_, err := el.Text(context.Background())
		require.Error(t, err)
		assert.True(t, IsStaleElement(err))
	})
}

func TestErrorRecognition(t *testing.T) {
	t.Parallel()

	assert.False(t, IsStaleElement(nil))
	assert.False(t, IsStaleElement(context.Canceled))
	assert.True(t, IsStaleElement(&CommandError{Code: "stale element reference"}))
	assert.True(t, IsStaleElement(&CommandError{LegacyStatus: 10}))
	assert.False(t, IsStaleElement(&CommandError{Code: "no such element"}))

	assert.True(t, isNoSuchElement(&CommandError{Code: "no such element"}))
	assert.True(t, isNoSuchElement(&CommandError{LegacyStatus: 7}))
	assert.False(t, isNoSuchElement(&CommandError{Code: "stale element reference"}))
}

func TestCheckResponse(t *testing.T) {
	t.Parallel()

	t.Run("legacy status in 200 response", func(t *testing.T) {
		t.Parallel()
		cmdErr := checkResponse(http.StatusOK, []byte(`{"status": 10, "value": {"message": "stale"}}`))
		require.NotNil(t, cmdErr)
		assert.Equal(t, 10, cmdErr.LegacyStatus)
		assert.Equal(t, "stale", cmdErr.Message)
	})

	t.Run("plain 2xx is fine", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, checkResponse(http.StatusOK, []byte(`{"value": null}`)))
	})
}
