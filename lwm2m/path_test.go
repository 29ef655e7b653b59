package lwm2m

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPath_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected Path
	}{
		{"already canonical", "/3/0/9", "/3/0/9"},
		{"missing leading slash", "3/0/9", "/3/0/9"},
		{"duplicate slashes", "//3//0/9", "/3/0/9"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, NewPath(test.in))
		})
	}
}

func TestPath_Level(t *testing.T) {
	tests := []struct {
		path     Path
		expected PathLevel
	}{
		{"/", LevelRoot},
		{"/3", LevelObject},
		{"/3/0", LevelObjectInstance},
		{"/3/0/9", LevelResource},
		{"/3/0/9/1", LevelResourceInstance},
	}
	for _, test := range tests {
		t.Run(string(test.path), func(t *testing.T) {
			assert.Equal(t, test.expected, test.path.Level())
		})
	}
}

func TestPath_IDs(t *testing.T) {
	p := NewPath("/3/0/9/2")

	oid, err := p.ObjectID()
	require.NoError(t, err)
	assert.Equal(t, 3, oid)

	iid, err := p.InstanceID()
	require.NoError(t, err)
	assert.Equal(t, 0, iid)

	rid, err := p.ResourceID()
	require.NoError(t, err)
	assert.Equal(t, 9, rid)

	riid, err := p.ResourceInstanceID()
	require.NoError(t, err)
	assert.Equal(t, 2, riid)
}

func TestPath_IDErrors(t *testing.T) {
	_, err := NewPath("/3").InstanceID()
	assert.Error(t, err, "missing segment should error")

	_, err = NewPath("/x/0").ObjectID()
	assert.Error(t, err, "non-integer segment should error")
}
