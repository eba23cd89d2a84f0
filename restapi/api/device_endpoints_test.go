package api_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/iosmockgps/mockgps-agent/toolkit"
	"github.com/iosmockgps/mockgps-agent/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func setLocationArgs(lat, lon string) []string {
	return []string{"developer", "dvt", "simulate-location", "set", "--rsd", "10.0.0.5", "12345", "--", lat, lon}
}

func TestDevicesReturnsToolkitOutputVerbatim(t *testing.T) {
	runner := new(runnerMock)
	out := `[{"ConnectionType": "USB", "DeviceName": "iPhone", "Identifier": "00008030"}]` + "\n"
	runner.On("Run", mock.Anything, "pymobiledevice3", []string{"usbmux", "list"}).Return(toolkit.Result{Stdout: out}, nil)
	r := newTestRouter(runner, readyTunnel(), defaultOptions())

	w := doRequest(r, http.MethodGet, "/devices", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, out, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	runner.AssertExpectations(t)
}

func TestDevicesFailureReturnsStderr(t *testing.T) {
	runner := new(runnerMock)
	runner.On("Run", mock.Anything, "pymobiledevice3", []string{"usbmux", "list"}).
		Return(toolkit.Result{ExitCode: 1}, &toolkit.CommandError{Args: []string{"pymobiledevice3"}, ExitCode: 1, Stderr: "usbmuxd not running\n"})
	r := newTestRouter(runner, readyTunnel(), defaultOptions())

	w := doRequest(r, http.MethodGet, "/devices", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "usbmuxd not running\n", decodeJSON(t, w)["error"])
}

func TestSetLocation(t *testing.T) {
	runner := new(runnerMock)
	runner.On("Run", mock.Anything, "pymobiledevice3", setLocationArgs("37.7749", "-122.4194")).Return(toolkit.Result{}, nil)
	r := newTestRouter(runner, readyTunnel(), defaultOptions())

	w := doRequest(r, http.MethodPost, "/setlocation", `{"latitude": 37.7749, "longitude": -122.4194}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "set device location to (-122.4194, 37.7749)", decodeJSON(t, w)["output"])
	runner.AssertExpectations(t)
}

func TestSetLocationEchoesCoordinatesAsSent(t *testing.T) {
	runner := new(runnerMock)
	runner.On("Run", mock.Anything, "pymobiledevice3", setLocationArgs("48.85", "2.35")).Return(toolkit.Result{}, nil)
	r := newTestRouter(runner, readyTunnel(), defaultOptions())

	w := doRequest(r, http.MethodPost, "/setlocation", `{"latitude": "48.850", "longitude": 2.350}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "set device location to (2.350, 48.850)", decodeJSON(t, w)["output"])
}

func TestSetLocationMissingCoordinates(t *testing.T) {
	bodies := []string{
		``,
		`{}`,
		`{"latitude": 37.7749}`,
		`{"longitude": -122.4194}`,
		`{"latitude": 0, "longitude": -122.4194}`,
		`{"latitude": 37.7749, "longitude": 0}`,
		`{"latitude": 37.7749, "longitude": ""}`,
		`{"latitude": null, "longitude": "abc"}`,
	}
	for _, body := range bodies {
		runner := new(runnerMock)
		r := newTestRouter(runner, readyTunnel(), defaultOptions())

		w := doRequest(r, http.MethodPost, "/setlocation", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "No (longitude, latitude) info provided", decodeJSON(t, w)["error"], body)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestSetLocationInvalidCoordinates(t *testing.T) {
	bodies := []string{
		`{"latitude": 91, "longitude": 10}`,
		`{"latitude": 10, "longitude": -180.5}`,
		`{"latitude": "north", "longitude": 10}`,
		`{"latitude": [1], "longitude": 10}`,
		`{"latitude": "1; reboot", "longitude": 10}`,
		`[1, 2]`,
		`{"latitude": 1,`,
	}
	for _, body := range bodies {
		runner := new(runnerMock)
		r := newTestRouter(runner, readyTunnel(), defaultOptions())

		w := doRequest(r, http.MethodPost, "/setlocation", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.NotEmpty(t, decodeJSON(t, w)["error"], body)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestSetLocationWithoutTunnel(t *testing.T) {
	runner := new(runnerMock)
	r := newTestRouter(runner, failedTunnel(tunnel.ErrMarkerNotFound), defaultOptions())

	w := doRequest(r, http.MethodPost, "/setlocation", `{"latitude": 37.7749, "longitude": -122.4194}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	msg, _ := decodeJSON(t, w)["error"].(string)
	assert.Contains(t, msg, "device tunnel is not established")
	assert.Contains(t, msg, tunnel.ErrMarkerNotFound.Error())
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)

	// the server keeps serving after the failure
	w = doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLocationWaitsAtMostTunnelWait(t *testing.T) {
	opts := defaultOptions()
	opts.TunnelWait = 30 * time.Millisecond
	r := newTestRouter(new(runnerMock), &tunnelStub{block: true}, opts)

	start := time.Now()
	w := doRequest(r, http.MethodPost, "/clearlocation", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, decodeJSON(t, w)["error"], context.DeadlineExceeded.Error())
}

func TestSetLocationCommandFailure(t *testing.T) {
	runner := new(runnerMock)
	runner.On("Run", mock.Anything, "pymobiledevice3", setLocationArgs("1", "2")).
		Return(toolkit.Result{ExitCode: 1}, &toolkit.CommandError{ExitCode: 1, Stderr: "DeveloperDiskImage not mounted"})
	r := newTestRouter(runner, readyTunnel(), defaultOptions())

	w := doRequest(r, http.MethodPost, "/setlocation", `{"latitude": 1, "longitude": 2}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "DeveloperDiskImage not mounted", decodeJSON(t, w)["error"])
}

func TestClearLocation(t *testing.T) {
	runner := new(runnerMock)
	runner.On("Run", mock.Anything, "pymobiledevice3", []string{"developer", "dvt", "simulate-location", "clear", "--rsd", "10.0.0.5", "12345"}).
		Return(toolkit.Result{}, nil)
	r := newTestRouter(runner, readyTunnel(), defaultOptions())

	w := doRequest(r, http.MethodPost, "/clearlocation", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cleared device location", decodeJSON(t, w)["output"])
	runner.AssertExpectations(t)
}

func TestClearLocationCommandTimesOut(t *testing.T) {
	runner := new(runnerMock)
	runner.On("Run", mock.Anything, "pymobiledevice3", mock.Anything).
		Return(toolkit.Result{}, errors.New("Run: pymobiledevice3 did not finish: context deadline exceeded"))
	opts := defaultOptions()
	opts.CommandTimeout = time.Second
	r := newTestRouter(runner, readyTunnel(), opts)

	w := doRequest(r, http.MethodPost, "/clearlocation", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeJSON(t, w)["error"], "did not finish")
}

func TestLocationEndpointsRejectGet(t *testing.T) {
	r := newTestRouter(new(runnerMock), readyTunnel(), defaultOptions())
	w := doRequest(r, http.MethodGet, "/setlocation", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	w = doRequest(r, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
