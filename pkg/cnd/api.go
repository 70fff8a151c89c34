// Package cnd is a minimal client for the HTTP API of the comit network daemon.
package cnd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/comit-network/swapharness/pkg/siren"
)

type Api struct {
	URL    string
	Client http.Client
}

const (
	SwapsPath   = "/swaps"
	Rfc003Path  = "/swaps/rfc003"
	jsonType    = "application/json"
	formUrlType = "application/x-www-form-urlencoded"
)

type Info struct {
	Id              string   `json:"id"`
	ListenAddresses []string `json:"listen_addresses"`
}

// FieldValues maps the names of action fields to the values they are filled with.
type FieldValues map[string]any

type Response struct {
	Method     string
	Url        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (response *Response) ContentType() string {
	return response.Header.Get("Content-Type")
}

func (response *Response) Location() string {
	return response.Header.Get("Location")
}

func (response *Response) Json(target any) error {
	return json.Unmarshal(response.Body, target)
}

func (response *Response) String() string {
	if response == nil {
		return "<no response>"
	}
	return fmt.Sprintf("%s %s -> %d %s", response.Method, response.Url, response.StatusCode, string(response.Body))
}

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrTransport        = errors.New("transport error")
)

// TransportError is returned when a request got no response at all.
type TransportError struct {
	Method string
	Url    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrTransport, e.Method, e.Url, e.Err)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type UnexpectedStatusError struct {
	Response *Response
	Expected string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrUnexpectedStatus, e.Expected, e.Response)
}

func (e *UnexpectedStatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// ResponseCheck asserts the status of a response; the default is ExpectSuccess.
type ResponseCheck func(response *Response) error

func ExpectSuccess(response *Response) error {
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &UnexpectedStatusError{Response: response, Expected: "2xx"}
	}
	return nil
}

func ExpectStatus(status int) ResponseCheck {
	return func(response *Response) error {
		if response.StatusCode != status {
			return &UnexpectedStatusError{Response: response, Expected: fmt.Sprint(status)}
		}
		return nil
	}
}

func (cnd *Api) Resolve(href string) (string, error) {
	base, err := url.Parse(cnd.URL)
	if err != nil {
		return "", fmt.Errorf("invalid cnd url %s: %w", cnd.URL, err)
	}
	reference, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %s: %w", href, err)
	}
	return base.ResolveReference(reference).String(), nil
}

// Get fetches and decodes the representation at href. Anything but a 200 is an error.
func (cnd *Api) Get(ctx context.Context, href string) (*siren.Entity, error) {
	response, err := cnd.send(ctx, http.MethodGet, href, nil, "")
	if err != nil {
		return nil, err
	}
	if err := ExpectStatus(http.StatusOK)(response); err != nil {
		return nil, err
	}
	entity, err := siren.Parse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("could not parse representation of %s: %w", response.Url, err)
	}
	return entity, nil
}

func (cnd *Api) GetSwaps(ctx context.Context) (*siren.Entity, error) {
	return cnd.Get(ctx, SwapsPath)
}

func (cnd *Api) GetInfo(ctx context.Context) (*Info, error) {
	response, err := cnd.send(ctx, http.MethodGet, "/", nil, "")
	if err != nil {
		return nil, err
	}
	if err := ExpectSuccess(response); err != nil {
		return nil, err
	}
	var info Info
	if err := response.Json(&info); err != nil {
		return nil, fmt.Errorf("could not parse cnd info: %w", err)
	}
	return &info, nil
}

// CreateSwap posts the request body as json to path. The response is returned as is.
func (cnd *Api) CreateSwap(ctx context.Context, path string, request any) (*Response, error) {
	rawBody, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	return cnd.send(ctx, http.MethodPost, path, rawBody, jsonType)
}

// Execute performs the request described by action. Fields which have no
// value in values are left out. The response is not interpreted.
func (cnd *Api) Execute(ctx context.Context, action *siren.Action, values FieldValues) (*Response, error) {
	method := action.HttpMethod()
	href := action.Href

	filled := make(map[string]any)
	for _, field := range action.Fields {
		if value, ok := values[field.Name]; ok {
			filled[field.Name] = value
		} else if field.Value != nil {
			filled[field.Name] = field.Value
		}
	}

	if method == http.MethodGet {
		if len(filled) > 0 {
			resolved, err := url.Parse(href)
			if err != nil {
				return nil, fmt.Errorf("invalid href %s: %w", href, err)
			}
			query := resolved.Query()
			for name, value := range filled {
				query.Set(name, fmt.Sprint(value))
			}
			resolved.RawQuery = query.Encode()
			href = resolved.String()
		}
		return cnd.send(ctx, method, href, nil, "")
	}

	if strings.HasPrefix(action.Type, formUrlType) {
		form := url.Values{}
		for name, value := range filled {
			form.Set(name, fmt.Sprint(value))
		}
		return cnd.send(ctx, method, href, []byte(form.Encode()), formUrlType)
	}

	rawBody, err := json.Marshal(filled)
	if err != nil {
		return nil, err
	}
	return cnd.send(ctx, method, href, rawBody, jsonType)
}

func (cnd *Api) send(ctx context.Context, method string, href string, body []byte, contentType string) (*Response, error) {
	target, err := cnd.Resolve(href)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", siren.ContentType+", "+jsonType)

	res, err := cnd.Client.Do(request)
	if err != nil {
		// cancellation by the caller is not a transport failure
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &TransportError{Method: method, Url: target, Err: err}
	}
	defer res.Body.Close()

	rawBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response of %s %s: %w", method, target, err)
	}

	return &Response{
		Method:     method,
		Url:        target,
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       rawBody,
	}, nil
}
