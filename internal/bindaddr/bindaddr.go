// Package bindaddr resolves the listen_addr="auto" runtime option to a
// concrete interface address and lists candidate interfaces for
// internal/controlapi (§6 "configurable bind address and port").
//
// Adapted from the teacher's internal/services/network.GetNetworkInterfaces,
// which enumerated interfaces to pick an ArtNet broadcast source; this
// package enumerates them to pick a UDP listen address instead, so the
// platform-specific (networksetup/macOS) interface-type detection and the
// broadcast-address arithmetic that only that use case needed are dropped.
package bindaddr

import (
	"fmt"
	"net"
	"strings"
)

// Candidate is one usable bind interface.
type Candidate struct {
	Name string
	Type string // "ethernet", "wifi", "other"
	IP   string
}

// Candidates enumerates up, non-loopback IPv4 interfaces.
func Candidates() ([]Candidate, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("bindaddr: list interfaces: %w", err)
	}

	var out []Candidate
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			out = append(out, Candidate{Name: iface.Name, Type: interfaceType(iface.Name), IP: ip4.String()})
		}
	}
	return out, nil
}

// interfaceType guesses an interface's kind from its name, for display
// purposes only.
func interfaceType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"), strings.HasPrefix(lower, "eno"):
		return "ethernet"
	case strings.HasPrefix(lower, "wlan"), strings.HasPrefix(lower, "wl"), strings.Contains(lower, "wifi"):
		return "wifi"
	default:
		return "other"
	}
}

// Resolve returns addr unchanged unless it is "auto", in which case it
// returns the first candidate interface's address. Returns an error if
// "auto" was requested and no candidate interface exists.
func Resolve(addr string) (string, error) {
	if addr != "auto" {
		return addr, nil
	}
	candidates, err := Candidates()
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("bindaddr: listen_addr=auto but no usable interface found")
	}
	return candidates[0].IP, nil
}
