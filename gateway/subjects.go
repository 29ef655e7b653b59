package gateway

import (
	"fmt"
	"strings"
)

// DefaultMountpoint is the subject prefix shared with the EMQx LwM2M
// gateway configuration.
const DefaultMountpoint = "lwm2m"

// subjectUnsafe lists the characters that cannot appear inside a NATS
// subject token. '%' is included so escaping stays reversible.
const subjectUnsafe = "%. *>\t"

// EscapeEndpoint turns an endpoint client ID into a single NATS subject
// token, percent-escaping anything a token cannot carry.
func EscapeEndpoint(name string) string {
	if !strings.ContainsAny(name, subjectUnsafe) {
		return name
	}
	var b strings.Builder
	b.Grow(len(name) + 8)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if strings.IndexByte(subjectUnsafe, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeEndpoint reverses EscapeEndpoint. Malformed escapes are kept
// verbatim rather than rejected; the token still names the same device
// consistently.
func UnescapeEndpoint(token string) string {
	if !strings.ContainsRune(token, '%') {
		return token
	}
	var b strings.Builder
	b.Grow(len(token))
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c == '%' && i+2 < len(token) {
			var v int
			if n, err := fmt.Sscanf(token[i+1:i+3], "%02X", &v); err == nil && n == 1 {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// downlinkSubject is where commands for one endpoint are published.
func downlinkSubject(mountpoint, endpoint string) string {
	return mountpoint + "." + EscapeEndpoint(endpoint) + ".dn"
}

// uplinkSubject matches every uplink message from one endpoint.
func uplinkSubject(mountpoint, endpoint string) string {
	return mountpoint + "." + EscapeEndpoint(endpoint) + ".up.>"
}

// uplinkWildcard matches uplink traffic from every endpoint under the
// mountpoint.
func uplinkWildcard(mountpoint string) string {
	return mountpoint + ".*.up.>"
}

// parseUplinkSubject extracts the endpoint client ID from an uplink
// subject. It reports false for subjects outside the mountpoint or not
// shaped like {mountpoint}.{endpoint}.up...
func parseUplinkSubject(mountpoint, subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, mountpoint+".")
	if !ok {
		return "", false
	}
	token, rest, ok := strings.Cut(rest, ".")
	if !ok || token == "" {
		return "", false
	}
	if rest != "up" && !strings.HasPrefix(rest, "up.") {
		return "", false
	}
	return UnescapeEndpoint(token), true
}
