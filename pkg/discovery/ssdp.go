package discovery

import (
	"bufio"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
)

// Protocol constants.
const (
	// MulticastAddress is the SSDP group devices listen on.
	MulticastAddress = "239.255.255.250:1982"

	// SearchPort is the UDP port devices answer searches on.
	SearchPort = 1982

	// DefaultCommandPort is assumed when Location has no port.
	DefaultCommandPort = 55443

	// SearchTarget is the ST value devices respond to.
	SearchTarget = "wifi_bulb"
)

// Parse errors.
var (
	ErrNoLocation  = errors.New("response has no Location")
	ErrBadLocation = errors.New("invalid Location")
)

// Source tells how a descriptor was obtained.
type Source uint8

const (
	// SourceSearch is a reply to a multicast search.
	SourceSearch Source = iota
	// SourceProbe is a reply to a unicast search.
	SourceProbe
	// SourceNotify is an unsolicited advertisement.
	SourceNotify
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceSearch:
		return "search"
	case SourceProbe:
		return "probe"
	case SourceNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Descriptor describes one device as it announced itself.
type Descriptor struct {
	// Address is the command channel address from Location.
	Address netip.AddrPort

	// Location is the raw Location value.
	Location string

	ID              string
	Model           string
	FirmwareVersion string
	Name            string

	// Capabilities come from the support line.
	Capabilities capability.Set

	// Snapshot holds the state lines of the reply.
	Snapshot props.Properties

	Source Source
}

// snapshotKeys are the reply lines copied into Descriptor.Snapshot.
var snapshotKeys = []string{
	props.Power, props.Bright, props.ColorMode, props.CT,
	props.RGB, props.Hue, props.Sat, props.Name,
}

// SearchRequest returns the M-SEARCH datagram.
func SearchRequest() []byte {
	return []byte("M-SEARCH * HTTP/1.1\r\n" +
		"HOST: " + MulticastAddress + "\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"ST: " + SearchTarget + "\r\n" +
		"\r\n")
}

// IsNotify reports whether text is an unsolicited advertisement.
func IsNotify(text string) bool {
	return strings.HasPrefix(text, "NOTIFY")
}

// ParseResponse parses a search reply or advertisement. Keys are matched
// case-insensitively; unparseable state values are left at zero.
func ParseResponse(text string) (Descriptor, error) {
	var d Descriptor
	headers := parseHeaders(text)

	loc, ok := headers["location"]
	if !ok || loc == "" {
		return d, ErrNoLocation
	}
	addr, err := parseLocation(loc)
	if err != nil {
		return d, err
	}
	d.Address = addr
	d.Location = loc

	d.ID = headers["id"]
	d.Model = headers["model"]
	d.FirmwareVersion = headers["fw_ver"]
	d.Name = headers["name"]
	d.Capabilities = capability.ParseSupport(headers["support"])

	for _, key := range snapshotKeys {
		if v, ok := headers[key]; ok && v != "" {
			_ = d.Snapshot.Set(key, v)
		}
	}
	if IsNotify(text) {
		d.Source = SourceNotify
	}
	return d, nil
}

func parseHeaders(text string) map[string]string {
	headers := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, dup := headers[key]; dup {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

// parseLocation accepts "scheme://ip[:port]" and a bare "ip[:port]".
func parseLocation(loc string) (netip.AddrPort, error) {
	hostport := loc
	if _, rest, ok := strings.Cut(loc, "://"); ok {
		hostport = rest
	}
	hostport = strings.TrimSuffix(hostport, "/")

	if ip, err := netip.ParseAddr(hostport); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), DefaultCommandPort), nil
	}

	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrBadLocation, loc)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrBadLocation, loc)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrBadLocation, loc)
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
}
