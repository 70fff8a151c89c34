package scenario

import (
	"context"
	"fmt"
	"testing"

	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/poll"
	"github.com/comit-network/swapharness/pkg/cnd"
	"github.com/comit-network/swapharness/pkg/siren"
	"github.com/stretchr/testify/require"
)

func TestLocations(t *testing.T) {
	locations := NewLocations()
	require.NoError(t, locations.Set("alice", "/swaps/rfc003/1"))
	require.Error(t, locations.Set("alice", "/swaps/rfc003/2"))

	url, ok := locations.Get("alice")
	require.True(t, ok)
	require.Equal(t, "/swaps/rfc003/1", url)

	_, ok = locations.Get("bob")
	require.False(t, ok)

	all := locations.All()
	all["bob"] = "changed"
	_, ok = locations.Get("bob")
	require.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{nil, ""},
		{&poll.TimeoutError{}, KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{&poll.TransportError{Err: fmt.Errorf("connection refused")}, KindTransportError},
		{fmt.Errorf("%w: fund: %w", siren.ErrActionNotOffered, &poll.TimeoutError{}), KindActionNotOffered},
		{&cnd.UnexpectedStatusError{Response: &cnd.Response{StatusCode: 500}, Expected: "2xx"}, KindUnexpectedStatus},
		{fmt.Errorf("%w: missing to", ledger.ErrMalformedLedgerAction), KindMalformedLedgerAction},
		{fmt.Errorf("%w: teleport", ledger.ErrUnrecognizedLedgerAction), KindUnrecognizedLedgerAction},
		{fmt.Errorf("%w: wrong balance", ErrAssertion), KindAssertionFailure},
		{&cnd.TransportError{Method: "POST", Url: "http://127.0.0.1:1/swaps/rfc003", Err: fmt.Errorf("connection refused")}, KindTransportError},
		{fmt.Errorf("%w: accept offered 2 times", siren.ErrDuplicateAction), KindProtocolViolation},
		{&poll.TimeoutError{Stalled: &cnd.TransportError{Err: context.DeadlineExceeded}}, KindTimeout},
		{fmt.Errorf("something else"), KindOther},
	}

	for _, tc := range tests {
		require.Equal(t, tc.kind, Classify(tc.err), "%v", tc.err)
	}
}

func TestTimeoutDefaults(t *testing.T) {
	timeouts := Timeouts{Wait: 1}.withDefaults()
	require.Equal(t, DefaultTimeouts().Discovery, timeouts.Discovery)
	require.EqualValues(t, 1, timeouts.Wait)
}
