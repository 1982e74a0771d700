package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeGridServer is a minimal WebDriver endpoint serving one session
// with fixed result counter texts.
func fakeGridServer(t *testing.T, counters map[string]string) *httptest.Server {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/session":
			_, _ = fmt.Fprint(w, `{"value":{"sessionId":"job-1","capabilities":{}}}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/url"):
			_, _ = fmt.Fprint(w, `{"value":null}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/element"):
			body, _ := io.ReadAll(r.Body)
			selector := gjson.GetBytes(body, "value").String()
			var id string
			switch {
			case strings.HasSuffix(selector, ".passed"):
				id = "el-passed"
			case strings.HasSuffix(selector, ".failed"):
				id = "el-failed"
			case strings.HasSuffix(selector, ".total"):
				id = "el-total"
			default:
				w.WriteHeader(http.StatusNotFound)
				_, _ = fmt.Fprint(w, `{"value":{"error":"no such element","message":"unknown selector"}}`)
				return
			}
			_, _ = fmt.Fprintf(w, `{"value":{"element-6066-11e4-a52e-4f735466cecf":%q}}`, id)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/text"):
			parts := strings.Split(r.URL.Path, "/")
			elementID := parts[len(parts)-2]
			_, _ = fmt.Fprintf(w, `{"value":%q}`, counters[elementID])
		case r.Method == http.MethodDelete:
			_, _ = fmt.Fprint(w, `{"value":null}`)
		default:
			t.Errorf("unexpected webdriver request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// fakeAPIServer is a minimal grid REST API recording reported verdicts.
type fakeAPIServer struct {
	mx       sync.Mutex
	verdicts map[string]bool
}

func newFakeAPIServer(t *testing.T) (*fakeAPIServer, *httptest.Server) {
	api := &fakeAPIServer{verdicts: make(map[string]bool)}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/jobs/"):
			_, _ = fmt.Fprint(w, `{"id":"job-1","status":"in progress"}`)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/jobs/"):
			body, _ := io.ReadAll(r.Body)
			api.mx.Lock()
			api.verdicts[strings.TrimPrefix(r.URL.Path, "/jobs/")] = gjson.GetBytes(body, "passed").Bool()
			api.mx.Unlock()
			_, _ = fmt.Fprint(w, `{}`)
		default:
			t.Errorf("unexpected api request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return api, srv
}

func setupRunTest(t *testing.T, counters map[string]string) (*globalTestState, *fakeAPIServer) {
	gridSrv := fakeGridServer(t, counters)
	api, apiSrv := newFakeAPIServer(t)

	ts := newGlobalTestState(t)
	ts.envVars["GRIDRUN_USERNAME"] = "bob"
	ts.envVars["GRIDRUN_ACCESS_KEY"] = "secret-key"
	ts.envVars["GRIDRUN_HOST"] = apiSrv.URL
	ts.envVars["GRIDRUN_WD_HOST"] = gridSrv.URL
	ts.envVars["GRIDRUN_WEB_APP_URL"] = "https://app.example.test"

	suite := `
baseName: ci suite
platforms:
  - platform: Linux
    browserName: firefox
targets:
  - url: http://localhost:8000/tests.html
`
	require.NoError(t, afero.WriteFile(ts.fs, "/test/gridrun.yaml", []byte(suite), 0o644))

	ts.args = []string{"gridrun", "run", "--poll-interval", "20ms", "gridrun.yaml"}
	return ts, api
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	t.Run("all platforms pass", func(t *testing.T) {
		t.Parallel()
		ts, api := setupRunTest(t, map[string]string{
			"el-passed": "5", "el-failed": "0", "el-total": "5",
		})
		newRootCommand(ts.globalState).execute()

		require.False(t, ts.exited, "unexpected exit, stderr: %s", ts.stdErr.String())
		stdOut := ts.stdOut.String()
		assert.Contains(t, stdOut, "PASSED")
		assert.Contains(t, stdOut, "Linux firefox - ci suite")
		assert.Contains(t, stdOut, "5 passed, 0 failed, 5 total")

		api.mx.Lock()
		defer api.mx.Unlock()
		assert.Equal(t, map[string]bool{"job-1": true}, api.verdicts)
	})

	t.Run("a failing platform fails the run", func(t *testing.T) {
		t.Parallel()
		ts, api := setupRunTest(t, map[string]string{
			"el-passed": "4", "el-failed": "1", "el-total": "5",
		})
		newRootCommand(ts.globalState).execute()

		require.True(t, ts.exited)
		assert.Equal(t, 1, ts.exitCode)
		stdOut := ts.stdOut.String()
		assert.Contains(t, stdOut, "FAILED")
		assert.Contains(t, stdOut, "4 passed, 1 failed, 5 total")
		assert.Contains(t, stdOut, "https://app.example.test/jobs/job-1")

		api.mx.Lock()
		defer api.mx.Unlock()
		assert.Equal(t, map[string]bool{"job-1": false}, api.verdicts)
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()
		ts, _ := setupRunTest(t, nil)
		delete(ts.envVars, "GRIDRUN_USERNAME")
		delete(ts.envVars, "GRIDRUN_ACCESS_KEY")
		newRootCommand(ts.globalState).execute()

		require.True(t, ts.exited)
		assert.Equal(t, 104, ts.exitCode)
	})

	t.Run("missing suite file", func(t *testing.T) {
		t.Parallel()
		ts, _ := setupRunTest(t, nil)
		ts.args = []string{"gridrun", "run", "missing.yaml"}
		newRootCommand(ts.globalState).execute()

		require.True(t, ts.exited)
		assert.Equal(t, 104, ts.exitCode)
	})
}
