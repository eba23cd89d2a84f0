package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTXTRecords(t *testing.T) {
	txt := TXTRecords("local-build")
	assert.Contains(t, txt, "version=local-build")
	assert.Contains(t, txt, "path=/")
}

func TestAdvertiseRejectsEphemeralPort(t *testing.T) {
	_, err := Advertise("agent", 0, nil)
	assert.Error(t, err)
}

func TestShutdownNil(t *testing.T) {
	var a *Advertiser
	a.Shutdown()
}
