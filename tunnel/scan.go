package tunnel

import (
	"bufio"
	"io"
	"strings"

	"github.com/iosmockgps/mockgps-agent/toolkit"
	log "github.com/sirupsen/logrus"
)

// Marker is printed by tunneld once a tunnel to a device is up.
const Marker = "Created tunnel --rsd"

const maxLineLength = 1024 * 1024

// ExtractToken returns the "--rsd <host> <port>" part of a marker line.
func ExtractToken(line string) (string, bool) {
	if !strings.Contains(line, Marker) {
		return "", false
	}
	line = strings.TrimSpace(line)
	return strings.TrimSpace(line[strings.Index(line, toolkit.RSDFlag):]), true
}

// scanOutput reads r until EOF and reports the first marker line whose token parses to found.
// Unparsable markers are skipped, tunneld may still print a valid one. Everything after the
// reported marker is drained so the process never blocks on a full pipe. If output ends without
// an address, the error says why.
func scanOutput(r io.Reader, found func(toolkit.RSDAddress)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	result := ErrMarkerNotFound
	for scanner.Scan() {
		line := scanner.Text()
		if result == nil {
			log.WithField("line", line).Trace("tunnel")
			continue
		}
		log.WithField("line", line).Debug("tunnel")
		token, ok := ExtractToken(line)
		if !ok {
			continue
		}
		addr, err := toolkit.ParseRSDAddress(token)
		if err != nil {
			log.WithError(err).Warn("ignoring unparsable tunnel marker")
			result = err
			continue
		}
		log.WithField("address", addr.String()).Info("extracted rsd address")
		found(addr)
		result = nil
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("failed reading tunnel output")
		_, _ = io.Copy(io.Discard, r)
	}
	return result
}
