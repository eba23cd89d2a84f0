// Package discovery announces the agent on the local network over mDNS so controllers
// can find it without knowing its address.
package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"
)

const (
	// ServiceType is the DNS-SD service the agent registers.
	ServiceType = "_mockgps._tcp"
	domain      = "local."
)

// Advertiser keeps an mDNS registration alive until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
}

// TXTRecords returns the TXT entries describing the agent.
func TXTRecords(version string) []string {
	return []string{
		"version=" + version,
		"path=/",
		"endpoints=/devices,/setlocation,/clearlocation,/execute",
	}
}

// Advertise registers instance on port with the given TXT records on all interfaces.
func Advertise(instance string, port int, txt []string) (*Advertiser, error) {
	if port <= 0 {
		return nil, fmt.Errorf("Advertise: invalid port %d", port)
	}
	server, err := zeroconf.Register(instance, ServiceType, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("Advertise: failed registering %s: %w", ServiceType, err)
	}
	log.WithFields(log.Fields{"instance": instance, "service": ServiceType, "port": port}).Info("advertising agent via mDNS")
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the registration.
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
