package lwm2m

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttributes(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected Attributes
	}{
		{
			"full form",
			"[60,120]5:10:95",
			Attributes{PMin: Int(60), PMax: Int(120), Lt: Float(5), St: Float(10), Gt: Float(95)},
		},
		{
			"periods only",
			"[10,300]",
			Attributes{PMin: Int(10), PMax: Int(300)},
		},
		{
			"thresholds only",
			"5::95",
			Attributes{Lt: Float(5), Gt: Float(95)},
		},
		{
			"pmax only",
			"[,120]",
			Attributes{PMax: Int(120)},
		},
		{
			"empty",
			"",
			Attributes{},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseAttributes(test.in)
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestAttributes_RoundTrip(t *testing.T) {
	for _, s := range []string{"[60,120]5:10:95", "[10,300]", "5::95"} {
		a, err := ParseAttributes(s)
		require.NoError(t, err)
		assert.Equal(t, s, a.String())
	}
}

func TestAttributes_Len(t *testing.T) {
	assert.Equal(t, 0, Attributes{}.Len())
	assert.Equal(t, 2, Attributes{PMin: Int(1), Gt: Float(2)}.Len())
	assert.Equal(t, 5, Attributes{
		PMin: Int(1), PMax: Int(2), Lt: Float(3), St: Float(4), Gt: Float(5),
	}.Len())
}
