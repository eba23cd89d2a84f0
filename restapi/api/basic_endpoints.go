package api

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Mock GPS Agent Server</title></head>
<body>
<h1>Mock GPS Agent Server</h1>
<ul>
<li><b>IOS Device Lockdown Tunnel:</b> {{if .Tunnel.Address}}{{.Tunnel.Address}}{{else}}not established{{end}} ({{.Tunnel.State}})</li>
<li><b>Server is running on:</b> http://{{.Host}}:{{.Port}}</li>
<li><b>Developer script patch:</b> {{.Patch}}</li>
<li><b>Version:</b> {{.Version}}</li>
<li>
<h2>Available Endpoints:</h2>
<ul>
{{range .Endpoints}}<li><b>{{.Method}} {{.Path}}:</b> {{.Description}}</li>
{{end}}</ul>
</li>
</ul>
</body>
</html>
`))

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Tunnel  string `json:"tunnel"`
	Patch   string `json:"patch"`
}

// Status renders the human readable status page.
// @Summary      Status page
// @Description  Shows the tunnel address, the server url and the available endpoints
// @Tags         general
// @Produce      html
// @Success      200
// @Router       / [get]
func (g *Gateway) Status(c *gin.Context) {
	c.HTML(http.StatusOK, "status", gin.H{
		"Tunnel":    g.tunnel.Info(),
		"Host":      g.opts.Host,
		"Port":      g.opts.Port,
		"Patch":     g.patch.Status().String(),
		"Version":   g.opts.Version,
		"Endpoints": Endpoints,
	})
}

// Health reports liveness. It always answers 200 while the server runs, a missing tunnel
// shows up in the tunnel field.
// @Summary      Health check
// @Description  Reports liveness together with the tunnel and patch state
// @Tags         general
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (g *Gateway) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: g.opts.Version,
		Tunnel:  g.tunnel.Info().State,
		Patch:   g.patch.Status().Outcome.String(),
	})
}

// Tunnel returns a snapshot of the tunnel supervisor.
// @Summary      Device tunnel state
// @Description  Returns state, rsd address, pid and last error of the tunnel
// @Tags         general
// @Produce      json
// @Success      200  {object}  tunnel.Info
// @Router       /tunnel [get]
func (g *Gateway) Tunnel(c *gin.Context) {
	c.JSON(http.StatusOK, g.tunnel.Info())
}
