package queryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CredentialProvider supplies the bearer credential attached to outgoing
// requests. It is consumed as an opaque collaborator; token storage and
// refresh live elsewhere. Token may be called concurrently.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed credential, useful for tools and tests.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Response is one decoded wire response: data, protocol errors, or (for
// partial results) both.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ResponseError `json:"errors,omitempty"`
}

// Transport performs a single attempt of a request. Implementations must
// honor ctx; retries and deduplication happen above this interface.
type Transport interface {
	Do(ctx context.Context, d Descriptor) (*Response, error)
}

type wireRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Variant       string         `json:"variant,omitempty"`
}

// HTTPTransport POSTs JSON-encoded requests to a single endpoint.
type HTTPTransport struct {
	Endpoint    string
	Client      *http.Client
	Credentials CredentialProvider
}

var _ Transport = (*HTTPTransport)(nil)

func (t *HTTPTransport) Do(ctx context.Context, d Descriptor) (*Response, error) {
	body, err := json.Marshal(wireRequest{
		OperationName: d.Operation,
		Variables:     d.Params,
		Variant:       d.Variant,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.Credentials != nil {
		token, err := t.Credentials.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("credential provider: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// The context error stays reachable through the wrap chain, so the
		// retry layer can still tell cancellation apart.
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	var decoded Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &decoded, nil
}
