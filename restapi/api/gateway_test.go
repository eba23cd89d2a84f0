package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/iosmockgps/mockgps-agent/patcher"
	"github.com/iosmockgps/mockgps-agent/restapi/api"
	"github.com/iosmockgps/mockgps-agent/toolkit"
	"github.com/iosmockgps/mockgps-agent/tunnel"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testAddr = toolkit.RSDAddress{Host: "10.0.0.5", Port: 12345}

type runnerMock struct {
	mock.Mock
}

func (r *runnerMock) Run(ctx context.Context, name string, args ...string) (toolkit.Result, error) {
	a := r.Called(ctx, name, args)
	return a.Get(0).(toolkit.Result), a.Error(1)
}

type tunnelStub struct {
	addr  toolkit.RSDAddress
	err   error
	block bool
	info  tunnel.Info
}

func (s *tunnelStub) Await(ctx context.Context) (toolkit.RSDAddress, error) {
	if s.block {
		<-ctx.Done()
		return toolkit.RSDAddress{}, fmt.Errorf("%w: %w", tunnel.ErrNotReady, ctx.Err())
	}
	return s.addr, s.err
}

func (s *tunnelStub) Info() tunnel.Info {
	return s.info
}

type patchStub struct {
	status patcher.Status
}

func (p patchStub) Status() patcher.Status {
	return p.status
}

func readyTunnel() *tunnelStub {
	return &tunnelStub{
		addr: testAddr,
		info: tunnel.Info{State: "ready", Address: testAddr.String(), Host: testAddr.Host, Port: testAddr.Port, Launches: 1},
	}
}

func failedTunnel(cause error) *tunnelStub {
	return &tunnelStub{
		err:  fmt.Errorf("%w: %w", tunnel.ErrNotReady, cause),
		info: tunnel.Info{State: "failed", Error: cause.Error(), Launches: 1},
	}
}

func defaultOptions() api.Options {
	return api.Options{
		Host:            "0.0.0.0",
		Port:            5000,
		Version:         "test",
		AllowedCommands: []string{"pymobiledevice3", "echo"},
	}
}

// newTestRouter wires the real toolkit to runner so requests can be checked down to the
// argument vector.
func newTestRouter(runner toolkit.Runner, tun api.TunnelState, opts api.Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tk := toolkit.New(toolkit.DefaultBinary, runner)
	patch := patchStub{status: patcher.Status{Outcome: patcher.OutcomePatched, Version: "4.14.16"}}
	return api.NewRouter(api.NewGateway(tk, runner, tun, patch, opts))
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	result := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result), w.Body.String())
	return result
}
