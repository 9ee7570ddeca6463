package serialport

import "strings"

// ignoredPatterns matches port names that can never be a control panel:
// Bluetooth virtual ports, vendor debug consoles and audio/tone ports. The
// match is case-insensitive on the full port name.
var ignoredPatterns = []string{
	"bluetooth",
	"debug-console",
	"wlan-debug",
	"tone",
}

// FilterPorts drops ports matching the ignore list so no handshake is ever
// attempted against them.
func FilterPorts(ports []string) []string {
	candidates := make([]string, 0, len(ports))
	for _, port := range ports {
		if !IsIgnored(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// IsIgnored reports whether the port name matches a known non-device pattern.
func IsIgnored(port string) bool {
	lower := strings.ToLower(port)
	for _, pattern := range ignoredPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
