package cnd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/comit-network/swapharness/pkg/siren"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method      string
	path        string
	query       string
	contentType string
	body        string
}

func setup(t *testing.T, status int, body string) (*Api, *[]recorded) {
	var requests []recorded
	var lock sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		lock.Lock()
		defer lock.Unlock()
		requests = append(requests, recorded{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			contentType: r.Header.Get("Content-Type"),
			body:        string(raw),
		})
		w.Header().Set("Location", "/swaps/rfc003/abc")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return &Api{URL: server.URL}, &requests
}

func TestGet(t *testing.T) {
	api, requests := setup(t, http.StatusOK, `{"properties": {"status": "IN_PROGRESS"}}`)

	entity, err := api.Get(context.Background(), "/swaps/rfc003/abc")
	require.NoError(t, err)
	require.Equal(t, "IN_PROGRESS", entity.Status())
	require.Equal(t, "/swaps/rfc003/abc", (*requests)[0].path)

	api, _ = setup(t, http.StatusInternalServerError, "oops")
	_, err = api.Get(context.Background(), "/swaps")
	require.True(t, errors.Is(err, ErrUnexpectedStatus))
}

func TestExecute(t *testing.T) {
	tests := []struct {
		desc        string
		action      siren.Action
		values      FieldValues
		method      string
		query       string
		contentType string
		body        map[string]any
	}{
		{
			desc:   "GetWithQuery",
			action: siren.Action{Name: "redeem", Href: "/swaps/rfc003/abc/redeem", Fields: []siren.Field{{Name: "address"}, {Name: "fee_per_byte"}}},
			values: FieldValues{"address": "bcrt1qxyz", "fee_per_byte": 20},
			method: http.MethodGet,
			query:  "address=bcrt1qxyz&fee_per_byte=20",
		},
		{
			desc:   "GetWithoutFields",
			action: siren.Action{Name: "fund", Href: "/swaps/rfc003/abc/fund"},
			values: FieldValues{"ignored": "value"},
			method: http.MethodGet,
		},
		{
			desc: "PostJson",
			action: siren.Action{Name: "accept", Method: "POST", Href: "/swaps/rfc003/abc/accept", Type: "application/json", Fields: []siren.Field{
				{Name: "beta_ledger_refund_identity"},
				{Name: "unresolved"},
			}},
			values:      FieldValues{"beta_ledger_refund_identity": "0x00a329c0648769a73afac7f9381e08fb43dbea72"},
			method:      http.MethodPost,
			contentType: jsonType,
			body:        map[string]any{"beta_ledger_refund_identity": "0x00a329c0648769a73afac7f9381e08fb43dbea72"},
		},
		{
			desc:        "PostForm",
			action:      siren.Action{Name: "decline", Method: "POST", Href: "/swaps/rfc003/abc/decline", Type: formUrlType, Fields: []siren.Field{{Name: "reason"}}},
			values:      FieldValues{"reason": "BadRate"},
			method:      http.MethodPost,
			contentType: formUrlType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			api, requests := setup(t, http.StatusOK, `{}`)
			response, err := api.Execute(context.Background(), &tc.action, tc.values)
			require.NoError(t, err)
			require.NoError(t, ExpectSuccess(response))

			require.Len(t, *requests, 1)
			request := (*requests)[0]
			require.Equal(t, tc.method, request.method)
			require.Equal(t, tc.action.Href, request.path)
			require.Equal(t, tc.query, request.query)
			require.Equal(t, tc.contentType, request.contentType)

			if tc.body != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal([]byte(request.body), &body))
				require.Equal(t, tc.body, body)
			}
			if tc.contentType == formUrlType {
				require.Equal(t, "reason=BadRate", request.body)
			}
		})
	}
}

func TestCreateSwap(t *testing.T) {
	api, requests := setup(t, http.StatusCreated, "")

	response, err := api.CreateSwap(context.Background(), Rfc003Path, map[string]any{"alpha_expiry": 123})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, response.StatusCode)
	require.Equal(t, "/swaps/rfc003/abc", response.Location())
	require.NoError(t, ExpectStatus(http.StatusCreated)(response))
	require.Equal(t, `{"alpha_expiry":123}`, (*requests)[0].body)
}

func TestResponseChecks(t *testing.T) {
	tests := []struct {
		status  int
		check   ResponseCheck
		success bool
	}{
		{200, ExpectSuccess, true},
		{204, ExpectSuccess, true},
		{400, ExpectSuccess, false},
		{201, ExpectStatus(201), true},
		{200, ExpectStatus(201), false},
	}

	for _, tc := range tests {
		err := tc.check(&Response{StatusCode: tc.status})
		if tc.success {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, ErrUnexpectedStatus)
			var statusErr *UnexpectedStatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, tc.status, statusErr.Response.StatusCode)
		}
	}
}

func TestResolve(t *testing.T) {
	api := &Api{URL: "http://localhost:8000"}

	resolved, err := api.Resolve("/swaps/rfc003/abc")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000/swaps/rfc003/abc", resolved)

	resolved, err = api.Resolve("http://127.0.0.1:8001/swaps/rfc003/abc")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8001/swaps/rfc003/abc", resolved)
}

func TestTransportError(t *testing.T) {
	api := &Api{URL: "http://127.0.0.1:1"}

	_, err := api.CreateSwap(context.Background(), Rfc003Path, map[string]any{})
	require.ErrorIs(t, err, ErrTransport)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.MethodPost, transportErr.Method)
	require.Equal(t, "http://127.0.0.1:1"+Rfc003Path, transportErr.Url)

	_, err = api.Execute(context.Background(), &siren.Action{Name: "accept", Method: http.MethodPost, Href: "/swaps/rfc003/abc/accept"}, nil)
	require.ErrorIs(t, err, ErrTransport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = api.Get(ctx, "/swaps")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTransport)
}
