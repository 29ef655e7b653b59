package endpointstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Penlect/emqxlwm2m/lwm2m"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{"plain", "device-1", "device-1"},
		{"urn", "urn:imei:123456789012345", "urn=3Aimei=3A123456789012345"},
		{"equals", "a=b", "a=3Db"},
		{"space", "my device", "my=20device"},
		{"dots kept", "dev.one", "dev.one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeKey(tt.endpoint)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.endpoint, decodeKey(got), "roundtrip")
		})
	}
}

func TestRecord_Fold(t *testing.T) {
	t0 := time.Now()
	var rec Record

	rec.fold(&lwm2m.Lifecycle{
		Endpoint:   "urn:dev:1",
		MsgType:    lwm2m.TypeRegister,
		Lifetime:   300,
		Version:    "1.0",
		Binding:    "U",
		ObjectList: []string{"/1/0", "/3/0"},
		Timestamp:  t0,
	})
	assert.Equal(t, "urn:dev:1", rec.Endpoint)
	assert.Equal(t, t0, rec.FirstSeen)
	assert.Equal(t, int64(300), rec.Lifetime)
	assert.Equal(t, int64(1), rec.Events)

	// Update with only a new lifetime keeps the rest.
	t1 := t0.Add(time.Minute)
	rec.fold(&lwm2m.Lifecycle{
		Endpoint:  "urn:dev:1",
		MsgType:   lwm2m.TypeUpdate,
		Lifetime:  60,
		Timestamp: t1,
	})
	assert.Equal(t, int64(60), rec.Lifetime)
	assert.Equal(t, "U", rec.Binding)
	assert.Equal(t, []string{"/1/0", "/3/0"}, rec.ObjectList)
	assert.Equal(t, t0, rec.FirstSeen, "first seen survives updates")
	assert.Equal(t, t1, rec.LastSeen)
	assert.Equal(t, lwm2m.TypeUpdate, rec.LastEvent)
	assert.Equal(t, int64(2), rec.Events)

	// Re-registration replaces the registration parameters wholesale.
	t2 := t1.Add(time.Minute)
	rec.fold(&lwm2m.Lifecycle{
		Endpoint:   "urn:dev:1",
		MsgType:    lwm2m.TypeRegister,
		Lifetime:   120,
		ObjectList: []string{"/3/0"},
		Timestamp:  t2,
	})
	assert.Equal(t, int64(120), rec.Lifetime)
	assert.Empty(t, rec.Binding)
	assert.Equal(t, []string{"/3/0"}, rec.ObjectList)
	assert.Equal(t, t0, rec.FirstSeen)
}

func TestRecord_Expired(t *testing.T) {
	now := time.Now()
	rec := Record{Lifetime: 60, LastSeen: now.Add(-61 * time.Second)}
	assert.True(t, rec.Expired(now))

	rec.LastSeen = now.Add(-59 * time.Second)
	assert.False(t, rec.Expired(now))

	rec = Record{LastSeen: now.Add(-time.Hour)}
	assert.False(t, rec.Expired(now), "zero lifetime never expires")
}

func TestRecord_Validate(t *testing.T) {
	rec := Record{}
	assert.Error(t, rec.Validate())
	rec.Endpoint = "urn:dev:1"
	assert.NoError(t, rec.Validate())
}
