package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/shlex"
	"github.com/iosmockgps/mockgps-agent/toolkit"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

const errNoCommand = "No command provided"

// Execute runs an allow-listed command. The command string is split like a shell would
// split words but never interpreted by one, so pipes, redirects and variables are plain
// arguments.
// @Summary      Execute an allowed command
// @Description  Runs the command if its executable is allow-listed, optionally returning stdout
// @Tags         general
// @Accept       json
// @Produce      json
// @Param        body  body      object  true  "command and optional return_output"
// @Success      200   {object}  OutputResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      429   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /execute [post]
func (g *Gateway) Execute(c *gin.Context) {
	body, err := decodeBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	raw := body["command"]
	if !toolkit.Truthy(raw) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errNoCommand})
		return
	}
	command, ok := raw.(string)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "command must be a string"})
		return
	}
	argv, err := shlex.Split(command)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid command: " + err.Error()})
		return
	}
	if len(argv) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errNoCommand})
		return
	}
	if !g.commandAllowed(argv[0]) {
		requestLog(c).WithField("command", argv[0]).Warn("rejected command not on the allow-list")
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "command not allowed: " + argv[0]})
		return
	}

	ctx, cancel := g.commandContext(c)
	defer cancel()
	requestLog(c).WithFields(log.Fields{"command": argv[0], "args": argv[1:]}).Info("executing command")
	res, err := g.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		requestLog(c).WithError(err).Error("command failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: toolkit.ErrorText(err)})
		return
	}
	output := "command executed"
	if toolkit.Truthy(body["return_output"]) {
		output = res.Stdout
	}
	c.JSON(http.StatusOK, OutputResponse{Output: output})
}

func (g *Gateway) commandAllowed(name string) bool {
	return g.opts.AllowAll || slices.Contains(g.opts.AllowedCommands, name)
}
