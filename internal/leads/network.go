package leads

import (
	"net"
	"strings"
)

// IPMask replaces the trailing octet or group of a stored client address.
const IPMask = "***"

// MaskIP hides the last segment of an address: 203.0.113.7 becomes 203.0.113.***,
// 2001:db8::1 becomes 2001:db8::***. Values that are not addresses are dropped.
func MaskIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		s := v4.String()
		return s[:strings.LastIndex(s, ".")+1] + IPMask
	}
	s := ip.String()
	return s[:strings.LastIndex(s, ":")+1] + IPMask
}
