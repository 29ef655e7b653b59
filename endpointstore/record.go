package endpointstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
)

// Record is one known endpoint as stored in the KV bucket.
type Record struct {
	Endpoint   string            `json:"endpoint"`
	Lifetime   int64             `json:"lifetime,omitempty"`
	Version    string            `json:"version,omitempty"`
	Binding    string            `json:"binding,omitempty"`
	ObjectList []string          `json:"object_list,omitempty"`
	LastEvent  lwm2m.MessageType `json:"last_event"`
	FirstSeen  time.Time         `json:"first_seen"`
	LastSeen   time.Time         `json:"last_seen"`
	// Events counts the lifecycle events folded into this record.
	Events int64 `json:"events"`
}

// Validate checks the record can be stored.
func (r *Record) Validate() error {
	if r.Endpoint == "" {
		return errors.WrapInvalid(
			fmt.Errorf("record without endpoint name"),
			"Record", "Validate", "endpoint name")
	}
	return nil
}

// Expired reports whether the endpoint's registration lifetime has lapsed
// since the last event. Zero lifetime never expires.
func (r *Record) Expired(now time.Time) bool {
	if r.Lifetime <= 0 {
		return false
	}
	return now.Sub(r.LastSeen) > time.Duration(r.Lifetime)*time.Second
}

// fold merges one lifecycle event into the record. A register replaces the
// registration parameters; an update only overrides what it carries, since
// LwM2M updates may omit unchanged fields.
func (r *Record) fold(lc *lwm2m.Lifecycle) {
	if r.Endpoint == "" {
		r.Endpoint = lc.Endpoint
		r.FirstSeen = lc.Timestamp
	}
	switch lc.MsgType {
	case lwm2m.TypeRegister:
		r.Lifetime = lc.Lifetime
		r.Version = lc.Version
		r.Binding = lc.Binding
		r.ObjectList = lc.ObjectList
	case lwm2m.TypeUpdate:
		if lc.Lifetime != 0 {
			r.Lifetime = lc.Lifetime
		}
		if lc.Binding != "" {
			r.Binding = lc.Binding
		}
		if len(lc.ObjectList) > 0 {
			r.ObjectList = lc.ObjectList
		}
	}
	r.LastEvent = lc.MsgType
	r.LastSeen = lc.Timestamp
	r.Events++
}

// kvKeyAllowed are the characters a JetStream KV key may contain besides
// letters and digits. '=' is reserved as the escape marker.
const kvKeyAllowed = "-/_."

// encodeKey maps an endpoint client ID onto a valid KV key. Characters
// outside the KV alphabet (colons in URNs, for one) become =XX hex pairs.
func encodeKey(endpoint string) string {
	var b strings.Builder
	b.Grow(len(endpoint))
	for i := 0; i < len(endpoint); i++ {
		c := endpoint[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte(kvKeyAllowed, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

// decodeKey reverses encodeKey. Malformed escapes are kept verbatim.
func decodeKey(key string) string {
	if !strings.ContainsRune(key, '=') {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '=' && i+2 < len(key) {
			var v int
			if n, err := fmt.Sscanf(key[i+1:i+3], "%02X", &v); err == nil && n == 1 {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
