package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
)

const (
	walletLoginPath = "/auth/wallet-login"
	refreshPath     = "/auth/refresh"
	logoutPath      = "/auth/logout"

	contentTypeJSON = "application/json"
	requestIDHeader = "X-Request-Id"

	maxBodyBytes    = 10 << 20
	maxMessageBytes = 512
)

type loginRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
}

type loginResponse struct {
	User         core.User `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Response is a backend response with its body fully read
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsJSON reports whether the response declares a JSON content type
func (r *Response) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// Payload returns the decoded JSON value for JSON responses and the raw
// text for everything else, including empty bodies.
func (r *Response) Payload() (any, error) {
	if !r.IsJSON() {
		return string(r.Body), nil
	}
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, fmt.Errorf("decode json response: %w", err)
	}
	return v, nil
}

// Decode unmarshals a JSON response into v
func (r *Response) Decode(v any) error {
	if !r.IsJSON() {
		return fmt.Errorf("response content type %q is not json", r.Header.Get("Content-Type"))
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode json response: %w", err)
	}
	return nil
}

// Text returns the raw body
func (r *Response) Text() string {
	return string(r.Body)
}

func (r *Response) ok() bool {
	return r.Status >= 200 && r.Status < 300
}

// httpError builds the error surfaced for a non-success response
func (r *Response) httpError() *core.HTTPError {
	return &core.HTTPError{Status: r.Status, Message: serverMessage(r)}
}

// serverMessage extracts a human readable message from an error body.
// It understands {"error":"..."}, {"message":"..."} and {"error":{"message":"..."}}.
func serverMessage(r *Response) string {
	if r.IsJSON() {
		var body struct {
			Error   json.RawMessage `json:"error"`
			Message string          `json:"message"`
		}
		if err := json.Unmarshal(r.Body, &body); err == nil {
			var s string
			if json.Unmarshal(body.Error, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			if body.Message != "" {
				return body.Message
			}
		}
	}

	msg := strings.TrimSpace(string(r.Body))
	if len(msg) > maxMessageBytes {
		cut := maxMessageBytes
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	if msg == "" {
		msg = http.StatusText(r.Status)
	}
	return msg
}

// encodeBody turns a request body into bytes that can be sent more than once
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case json.RawMessage:
		return b, contentTypeJSON, nil
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return raw, contentTypeJSON, nil
	}
}

// transport sends requests to the backend and reads whole responses
type transport struct {
	client  *http.Client
	baseURL string
}

func newTransport(client *http.Client, baseURL string) *transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &transport{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type outbound struct {
	method      string
	path        string
	query       url.Values
	header      http.Header
	body        []byte
	contentType string
	requestID   string
	bearer      string
}

func (t *transport) send(ctx context.Context, o outbound) (*Response, error) {
	target := t.baseURL + "/" + strings.TrimLeft(o.path, "/")
	if len(o.query) > 0 {
		target += "?" + o.query.Encode()
	}

	method := o.method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if o.body != nil {
		reader = bytes.NewReader(o.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, values := range o.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if o.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", o.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", contentTypeJSON+", text/plain;q=0.9, */*;q=0.8")
	}
	if o.requestID != "" {
		req.Header.Set(requestIDHeader, o.requestID)
	}
	if o.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+o.bearer)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, o.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, o.path, err)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// postJSON posts in and decodes a successful response into out.
// Non-success statuses come back as *core.HTTPError.
func (t *transport) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	resp, err := t.send(ctx, outbound{
		method:      http.MethodPost,
		path:        path,
		body:        body,
		contentType: contentTypeJSON,
		requestID:   uuid.NewString(),
	})
	if err != nil {
		return err
	}

	if !resp.ok() {
		return resp.httpError()
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
