package toolkit

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// RSDFlag introduces the remote service discovery address on the toolkit command line.
const RSDFlag = "--rsd"

// ErrInvalidAddress is returned for address tokens that are not of the form "--rsd <host> <port>".
var ErrInvalidAddress = errors.New("invalid rsd address")

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-]*$`)

// RSDAddress is where remote service discovery of a tunneled device can be reached.
type RSDAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ParseRSDAddress parses the token printed by the tunnel, e.g. "--rsd fd35:d15d:9fc::1 58783".
// Host and port are validated because they end up as arguments of device commands.
func ParseRSDAddress(token string) (RSDAddress, error) {
	fields := strings.Fields(token)
	if len(fields) != 3 || fields[0] != RSDFlag {
		return RSDAddress{}, fmt.Errorf("%w: '%s'", ErrInvalidAddress, token)
	}
	host := fields[1]
	if net.ParseIP(host) == nil && !hostnamePattern.MatchString(host) {
		return RSDAddress{}, fmt.Errorf("%w: bad host '%s'", ErrInvalidAddress, host)
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil || port < 1 || port > 65535 {
		return RSDAddress{}, fmt.Errorf("%w: bad port '%s'", ErrInvalidAddress, fields[2])
	}
	return RSDAddress{Host: host, Port: port}, nil
}

// IsZero reports whether no address has been set.
func (a RSDAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// Args renders the address as command line arguments.
func (a RSDAddress) Args() []string {
	return []string{RSDFlag, a.Host, strconv.Itoa(a.Port)}
}

func (a RSDAddress) String() string {
	if a.IsZero() {
		return ""
	}
	return strings.Join(a.Args(), " ")
}
