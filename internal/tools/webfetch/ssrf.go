// Package webfetch implements the web_fetch tool: a URL fetcher with an
// SSRF guard (hostname blocklist plus DNS private-range resolution
// check) and an x402 HTTP 402 payment-required retry flow. The SSRF
// checks here are deliberately stdlib-only — they are a narrow,
// security-critical IP/hostname classification with no third-party
// counterpart anywhere in the reference corpus, so hand-rolling them
// keeps the logic auditable rather than trusting an unfamiliar parser.
package webfetch

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var blockedHostnames = map[string]bool{
	"localhost":                 true,
	"metadata.google.internal":  true,
	"169.254.169.254":           true,
}

var dangerousSuffixes = []string{".localhost", ".local", ".internal"}

// BlockedError is returned when a hostname or IP is rejected by the
// SSRF guard.
type BlockedError struct{ Message string }

func (e *BlockedError) Error() string { return e.Message }

func blocked(message string) error { return &BlockedError{Message: message} }

func normalizeHostname(hostname string) string {
	h := strings.ToLower(strings.TrimSpace(hostname))
	h = strings.TrimSuffix(h, ".")
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	return h
}

// IsBlockedHostname reports whether hostname is explicitly blocked or
// carries a suffix that indicates an internal/local resource.
func IsBlockedHostname(hostname string) bool {
	h := normalizeHostname(hostname)
	if h == "" {
		return false
	}
	if blockedHostnames[h] {
		return true
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(h, suffix) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether an IPv4 or IPv6 address string falls in
// a private, loopback, link-local, or carrier-grade-NAT range.
func IsPrivateIP(address string) bool {
	ip := net.ParseIP(normalizeHostname(address))
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		return isPrivateIPv4(v4)
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	// fc00::/7 unique local addresses.
	return ip[0] == 0xfc || ip[0] == 0xfd
}

func isPrivateIPv4(ip net.IP) bool {
	a, b := ip[0], ip[1]
	switch {
	case a == 0:
		return true
	case a == 10:
		return true
	case a == 127:
		return true
	case a == 169 && b == 254:
		return true
	case a == 172 && b >= 16 && b <= 31:
		return true
	case a == 192 && b == 168:
		return true
	case a == 100 && b >= 64 && b <= 127:
		return true
	}
	return false
}

// ValidatePublicHostname rejects blocked hostnames, hostnames that are
// themselves a private IP literal, and hostnames that resolve (via the
// system resolver) to any private IP address.
func ValidatePublicHostname(hostname string) error {
	h := normalizeHostname(hostname)
	if h == "" {
		return errors.New("webfetch: empty hostname")
	}
	if IsBlockedHostname(h) {
		return blocked(fmt.Sprintf("blocked hostname: %s", hostname))
	}
	if IsPrivateIP(h) {
		return blocked("blocked: private/internal IP address")
	}

	ips, err := net.LookupIP(h)
	if err != nil {
		return fmt.Errorf("webfetch: resolve %s: %w", hostname, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("webfetch: no addresses for %s", hostname)
	}
	for _, ip := range ips {
		if IsPrivateIP(ip.String()) {
			return blocked("blocked: resolves to a private/internal IP address")
		}
	}
	return nil
}

// portIsAllowed restricts fetches to the standard web ports unless the
// caller explicitly opts into more, keeping an attacker from using
// web_fetch as a generic internal port scanner.
func portIsAllowed(portStr string) bool {
	if portStr == "" {
		return true
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port == 80 || port == 443 || port == 8080 || port == 8443
}
