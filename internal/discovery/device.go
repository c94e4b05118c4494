package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/muurk/wizlight/internal/wiz"
)

// Device represents a bulb that answered a discovery broadcast
type Device struct {
	// IP is the sender address of the first response (e.g., "192.168.1.20")
	IP string `json:"ip"`

	// Port is the sender port of the first response (typically 38899)
	Port int `json:"port"`

	// MAC is the hardware id reported as result.mac or params.mac.
	// Empty when the response carried neither.
	MAC string `json:"mac,omitempty"`

	// Method is the method of the first response (usually "registration")
	Method wiz.Method `json:"method"`

	// DiscoveredAt is when the device was first seen
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Key returns the deduplication key: host and hardware id
func (d *Device) Key() string {
	return deviceKey(d.IP, d.MAC)
}

// Address returns host:port suitable for wiz.Client.Send
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	mac := d.MAC
	if mac == "" {
		mac = "unknown MAC"
	}
	return fmt.Sprintf("WiZ bulb %s at %s", mac, d.Address())
}

func deviceKey(host, mac string) string {
	return host + "/" + mac
}
