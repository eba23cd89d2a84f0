package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iosmockgps/mockgps-agent/toolkit"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Devices returns the toolkit's device list verbatim.
// @Summary      List connected devices
// @Description  Returns the output of pymobiledevice3 usbmux list unchanged
// @Tags         device
// @Produce      json
// @Success      200  {array}   object
// @Failure      500  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /devices [get]
func (g *Gateway) Devices(c *gin.Context) {
	ctx, cancel := g.commandContext(c)
	defer cancel()
	res, err := g.devices.ListDevices(ctx)
	if err != nil {
		requestLog(c).WithError(err).Error("failed listing devices")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: toolkit.ErrorText(err)})
		return
	}
	entry := requestLog(c)
	if gjson.Valid(res.Stdout) {
		count := gjson.Get(res.Stdout, "#").Int()
		g.metrics.deviceCount.Set(float64(count))
		entry = entry.WithField("devices", count)
	}
	entry.Debug("listed devices")
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(res.Stdout))
}

// SetLocation simulates the posted latitude and longitude on the device.
// @Summary      Change the current device location
// @Description  Change the simulated device location to the provided latitude and longitude
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      object  true  "latitude and longitude as JSON numbers or strings"
// @Success      200   {object}  OutputResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /setlocation [post]
func (g *Gateway) SetLocation(c *gin.Context) {
	body, err := decodeBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	lat, latErr := toolkit.ParseLatitude(body["latitude"])
	lon, lonErr := toolkit.ParseLongitude(body["longitude"])
	if errors.Is(latErr, toolkit.ErrMissingCoordinate) || errors.Is(lonErr, toolkit.ErrMissingCoordinate) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: toolkit.ErrMissingCoordinate.Error()})
		return
	}
	if err := errors.Join(latErr, lonErr); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	addr, err := g.awaitTunnel(c)
	if err != nil {
		requestLog(c).WithError(err).Warn("set location without tunnel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := g.commandContext(c)
	defer cancel()
	requestLog(c).WithFields(log.Fields{"rsd": addr.String(), "latitude": lat.Text, "longitude": lon.Text}).Info("setting device location")
	if _, err := g.devices.SetLocation(ctx, addr, lat, lon); err != nil {
		requestLog(c).WithError(err).Error("failed setting location")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: toolkit.ErrorText(err)})
		return
	}
	c.JSON(http.StatusOK, OutputResponse{Output: fmt.Sprintf("set device location to (%s, %s)", lon, lat)})
}

// ClearLocation stops the location simulation on the device.
// @Summary      Reset the device location
// @Description  Stops simulating a location, the device reports its real one again
// @Tags         device
// @Produce      json
// @Success      200  {object}  OutputResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /clearlocation [post]
func (g *Gateway) ClearLocation(c *gin.Context) {
	addr, err := g.awaitTunnel(c)
	if err != nil {
		requestLog(c).WithError(err).Warn("clear location without tunnel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := g.commandContext(c)
	defer cancel()
	requestLog(c).WithField("rsd", addr.String()).Info("clearing device location")
	if _, err := g.devices.ClearLocation(ctx, addr); err != nil {
		requestLog(c).WithError(err).Error("failed clearing location")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: toolkit.ErrorText(err)})
		return
	}
	c.JSON(http.StatusOK, OutputResponse{Output: "cleared device location"})
}
