package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, f *cliFixture) *server {
	t.Helper()
	f.opts.ConfigPath = f.configPath
	f.opts.Format = "text"
	a, err := loadApp(f.opts, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	s, err := newServer(a, f.opts)
	require.NoError(t, err)
	return s
}

// do sends a request to s and decodes the response envelope.
func do(t *testing.T, s *server, method, path string) (int, Envelope, json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	var resp Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	return w.Code, resp, raw.Data
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, newCLIFixture(t, "sqlite"))

	code, resp, _ := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
}

func TestServer_SyncPauseStatus(t *testing.T) {
	f := newCLIFixture(t, "sqlite")
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	s := newTestServer(t, f)

	code, _, data := do(t, s, http.MethodPost, "/sync")
	require.Equal(t, http.StatusOK, code)
	var summary SyncSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 1, summary.Report.Target.Tasks.Add)
	_, found := f.target.ItemByContent("Buy milk")
	assert.True(t, found)

	code, _, _ = do(t, s, http.MethodPost, "/pause")
	require.Equal(t, http.StatusOK, code)

	f.clock.Advance(time.Minute)
	_, _, data = do(t, s, http.MethodPost, "/sync")
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.True(t, summary.Skipped)

	code, _, data = do(t, s, http.MethodGet, "/status?limit=5")
	require.Equal(t, http.StatusOK, code)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.True(t, st.Paused)
	require.Len(t, st.Passes, 2)
	assert.Equal(t, store.OutcomeSkipped, st.Passes[0].Outcome)
	assert.Equal(t, store.OutcomeOK, st.Passes[1].Outcome)

	code, _, _ = do(t, s, http.MethodPost, "/resume")
	require.Equal(t, http.StatusOK, code)
	paused, err := s.app.state.IsPaused(context.Background())
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestServer_SyncDryRun(t *testing.T) {
	f := newCLIFixture(t, "sqlite")
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	s := newTestServer(t, f)

	code, _, data := do(t, s, http.MethodPost, "/sync?dry_run=true")
	require.Equal(t, http.StatusOK, code)
	var summary SyncSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.True(t, summary.DryRun)
	assert.Empty(t, f.target.Batches())
}

func TestServer_LaterPassesFetchIncrementally(t *testing.T) {
	f := newCLIFixture(t, "sqlite")
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	s := newTestServer(t, f)

	code, _, _ := do(t, s, http.MethodPost, "/sync?dry_run=true")
	require.Equal(t, http.StatusOK, code)
	f.clock.Advance(time.Minute)
	code, _, _ = do(t, s, http.MethodPost, "/sync")
	require.Equal(t, http.StatusOK, code)
	f.clock.Advance(time.Minute)
	code, _, _ = do(t, s, http.MethodPost, "/sync")
	require.Equal(t, http.StatusOK, code)

	fetches := f.target.Fetches()
	require.Greater(t, len(fetches), 2)
	assert.Equal(t, "*", fetches[0])
	for _, token := range fetches[1:] {
		assert.NotEqual(t, "*", token, "only the first pass fetches the full state")
	}
	_, found := f.target.ItemByContent("Buy milk")
	assert.True(t, found)
}

func TestServer_SyncOutlivesClientDisconnect(t *testing.T) {
	f := newCLIFixture(t, "sqlite")
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	s := newTestServer(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/sync", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, found := f.target.ItemByContent("Buy milk")
	assert.True(t, found)
}

func TestServer_SyncBusy(t *testing.T) {
	s := newTestServer(t, newCLIFixture(t, "sqlite"))
	s.busy.Lock()
	defer s.busy.Unlock()

	code, resp, _ := do(t, s, http.MethodPost, "/sync")
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeLocked, resp.Error.Code)
}

func TestServer_SyncStoreUnavailable(t *testing.T) {
	f := newCLIFixture(t, "sqlite")
	f.source.FetchErr = assert.AnError
	s := newTestServer(t, f)

	code, resp, _ := do(t, s, http.MethodPost, "/sync")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePass, resp.Error.Code)
}

func TestServer_StatusBadLimit(t *testing.T) {
	s := newTestServer(t, newCLIFixture(t, "sqlite"))

	code, _, _ := do(t, s, http.MethodGet, "/status?limit=many")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_LoopRunsImmediately(t *testing.T) {
	f := newCLIFixture(t, "sqlite")
	f.source.SeedTask(model.Task{Content: "Buy milk"})
	s := newTestServer(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.loop(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, found := f.target.ItemByContent("Buy milk")
		return found
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}
