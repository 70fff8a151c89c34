package lnd

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/macaroon.v2"
)

func TestReadMacaroon(t *testing.T) {
	mac, err := macaroon.New([]byte("root key"), []byte("0"), "lnd", macaroon.LatestVersion)
	require.NoError(t, err)
	raw, err := mac.MarshalBinary()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "admin.macaroon")
	require.NoError(t, os.WriteFile(path, raw, 0600))

	tests := []struct {
		desc  string
		value string
		err   bool
	}{
		{"Hex", hex.EncodeToString(raw), false},
		{"File", path, false},
		{"MissingFile", filepath.Join(t.TempDir(), "missing.macaroon"), true},
		{"NotAMacaroon", hex.EncodeToString([]byte("garbage")), true},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			read, err := ReadMacaroon(tc.value)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, raw, read)
		})
	}
}

func TestNotConnected(t *testing.T) {
	lnd := &LND{}
	require.False(t, lnd.Ready())
	_, err := lnd.GetInfo(t.Context())
	require.ErrorIs(t, err, ErrNotConnected)
	require.NoError(t, lnd.Disconnect())
}
