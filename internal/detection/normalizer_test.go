package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer(DefaultSuffixes)

	tests := []struct {
		raw  string
		want string
	}{
		{"  Netflix  ", "netflix"},
		{"Adobe Inc.", "adobe"},
		{"ADOBE, INC.", "adobe"},
		{"Acme Widgets LLC", "acme widgets"},
		{"Acme Co. Corp", "acme"},
		{"Disco", "disco"},
		{"Spotify    USA", "spotify usa"},
		{"Café   Nero", "cafe nero"},
		{"AT&T", "att"},
		{"Amazon.com*Prime", "amazoncomprime"},
		{"Inc.", "inc"},
		{"Coffee Co - Downtown", "coffee co downtown"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := n.Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	n := NewNormalizer(DefaultSuffixes)
	for _, raw := range []string{"", "   ", "!!!", "-- .."} {
		_, err := n.Normalize(raw)
		assert.ErrorIs(t, err, ErrInvalidVendorName, "raw=%q", raw)
	}
}

// A name made only of a legal suffix keeps it as the key. The vendor is
// still grouped rather than skipped as an invalid name.
func TestNormalize_LoneSuffixIsKept(t *testing.T) {
	n := NewNormalizer(DefaultSuffixes)
	for raw, want := range map[string]string{
		"Inc.":      "inc",
		"LLC":       "llc",
		" corp. ":   "corp",
		"Co, Inc.":  "co",
		"Corp Corp": "corp",
	} {
		got, err := n.Normalize(raw)
		require.NoError(t, err, "raw=%q", raw)
		assert.Equal(t, want, got, "raw=%q", raw)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	n := NewNormalizer(DefaultSuffixes)
	first, err := n.Normalize("Adobe Systems, Inc.")
	require.NoError(t, err)
	for range 10 {
		again, err := n.Normalize("Adobe Systems, Inc.")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalize_CustomSuffixes(t *testing.T) {
	n := NewNormalizer([]string{"GmbH", " AG "})

	got, err := n.Normalize("Hetzner Online GmbH")
	require.NoError(t, err)
	assert.Equal(t, "hetzner online", got)

	got, err = n.Normalize("Siemens AG")
	require.NoError(t, err)
	assert.Equal(t, "siemens", got)

	got, err = n.Normalize("Adobe Inc")
	require.NoError(t, err)
	assert.Equal(t, "adobe inc", got, "default suffixes are not implied")
}
