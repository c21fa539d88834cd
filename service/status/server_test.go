package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PPClient/service/chat"
	"PPClient/tools/errs"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	st        chat.Status
	err       error
	reconnect int
}

func (f *fakeSource) Status() chat.Status { return f.st }
func (f *fakeSource) Reconnect() error {
	f.reconnect++
	if f.err != nil {
		return f.err
	}
	f.st.State = chat.Connecting
	f.st.Exhausted = false
	f.st.Attempts = 0
	return nil
}

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusAndReconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	src := &fakeSource{st: chat.Status{State: chat.Disconnected, Attempts: 6, MaxAttempts: 5, Exhausted: true, Queued: 2}}
	r := NewRouter(src, Options{Token: "s3cret", Logger: zaptest.NewLogger(t)})

	w := do(r, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "disconnected", got["state"])
	assert.Equal(t, true, got["exhausted"])
	assert.Equal(t, float64(2), got["queued"])

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/reconnect", nil).Code)
	assert.Equal(t, 0, src.reconnect)

	w = do(r, http.MethodPost, "/reconnect", map[string]string{"X-Status-Token": "s3cret"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, src.reconnect)
	assert.Contains(t, w.Body.String(), `"connecting"`)
}

func TestReconnectRefused(t *testing.T) {
	gin.SetMode(gin.TestMode)
	src := &fakeSource{err: errs.ErrNotConnected.WrapMsg("no identity")}
	r := NewRouter(src, Options{})

	w := do(r, http.MethodPost, "/reconnect", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var body errs.CodeError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errs.NotConnected, body.Code)
}

func TestRemoteRejectedByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(&fakeSource{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = NewRouter(&fakeSource{}, Options{AllowRemote: true})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, err := Start(&fakeSource{}, Options{Addr: "127.0.0.1:0", Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"recovery", "access", localOnly}, s.mids.Names())
	s.SetAllowRemote(true)
	assert.Equal(t, []string{"recovery", "access"}, s.mids.Names())
	s.SetAllowRemote(false)
	assert.Equal(t, []string{"recovery", "access", localOnly}, s.mids.Names())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
