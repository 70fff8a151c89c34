package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckVersion(t *testing.T) {
	tt := []struct {
		name    string
		version string
		min     string
		valid   bool
	}{
		{"lnd", "0.18.0-beta commit=v0.18.0-beta", "0.15.0", true},
		{"lnd rc", "v0.17.0rc2", "0.15.0", true},
		{"too old", "0.14.3-beta", "0.15.0", false},
		{"invalid", "what is this", "0.15.0", false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckVersion("test", tc.version, tc.min)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
