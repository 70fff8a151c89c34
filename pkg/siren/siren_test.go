package siren

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const swapJson = `{
	"class": ["swap"],
	"properties": {
		"protocol": "rfc003",
		"status": "IN_PROGRESS",
		"state": {
			"communication": {"status": "ACCEPTED"},
			"alpha_ledger": {"status": "FUNDED"}
		}
	},
	"actions": [
		{"name": "fund", "href": "/swaps/rfc003/1/fund", "method": "GET"},
		{"name": "refund", "href": "/swaps/rfc003/1/refund"},
		{"name": "fund", "href": "/swaps/rfc003/1/other-fund"}
	],
	"links": [{"rel": ["self"], "href": "/swaps/rfc003/1"}]
}`

func TestParse(t *testing.T) {
	entity, err := Parse([]byte(swapJson))
	require.NoError(t, err)

	require.Equal(t, "IN_PROGRESS", entity.Status())
	require.Equal(t, "ACCEPTED", entity.State().String("communication", "status"))
	require.Equal(t, "FUNDED", entity.State().String("alpha_ledger", "status"))
	require.Empty(t, entity.State().String("beta_ledger", "status"))

	self, ok := entity.SelfLink()
	require.True(t, ok)
	require.Equal(t, "/swaps/rfc003/1", self)

	_, err = Parse([]byte("not json"))
	require.Error(t, err)
}

func TestFindAction(t *testing.T) {
	entity, err := Parse([]byte(swapJson))
	require.NoError(t, err)

	tests := []struct {
		desc string
		kind ActionKind
		href string
		err  error
	}{
		{"Single", Refund, "/swaps/rfc003/1/refund", nil},
		{"Duplicate", Fund, "", ErrDuplicateAction},
		{"NotOffered", Redeem, "", ErrActionNotOffered},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			action, err := entity.FindAction(tc.kind)
			if tc.err != nil {
				require.True(t, errors.Is(err, tc.err))
				require.Nil(t, action)
				require.Contains(t, err.Error(), string(tc.kind))
				require.Equal(t, tc.err == ErrDuplicateAction, entity.HasAction(tc.kind))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.href, action.Href)
			require.True(t, entity.HasAction(tc.kind))
		})
	}

	// duplicates are reported, never dropped
	require.Len(t, entity.Actions, 3)
}

func TestHttpMethod(t *testing.T) {
	require.Equal(t, "GET", Action{}.HttpMethod())
	require.Equal(t, "POST", Action{Method: "post"}.HttpMethod())
}

func TestSubEntitySelfLink(t *testing.T) {
	href, ok := SubEntity{Href: "/swaps/1"}.SelfLink()
	require.True(t, ok)
	require.Equal(t, "/swaps/1", href)

	href, ok = SubEntity{Links: []Link{{Rel: []string{"self"}, Href: "/swaps/2"}}}.SelfLink()
	require.True(t, ok)
	require.Equal(t, "/swaps/2", href)

	_, ok = SubEntity{}.SelfLink()
	require.False(t, ok)
}

func TestFieldHasClass(t *testing.T) {
	field := Field{Name: "alpha_ledger_refund_identity", Class: []string{"bitcoin", "address"}}
	require.True(t, field.HasClass("bitcoin", "address"))
	require.False(t, field.HasClass("ethereum", "address"))
}
