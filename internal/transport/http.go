// Package transport implements the two ways an operation can be sent to a GraphQL server:
// HTTP POST (one request, one response) and a websocket that multiplexes any number of
// operations (mainly subscriptions) over one long-lived connection.
package transport

// http.go implements the request/response transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/dolmen-go/jsonmap"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/andrewwphillips/eggclient/internal/jsonutil"
	"github.com/andrewwphillips/eggclient/internal/operation"
)

// HTTP sends each operation as a JSON POST request
type HTTP struct {
	endpoint string
	client   *http.Client
}

// NewHTTP checks the endpoint and returns the transport. If client is nil
// http.DefaultClient is used.
func NewHTTP(endpoint string, client *http.Client) (*HTTP, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid HTTP endpoint %q", endpoint)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("HTTP endpoint %q must be an absolute http(s) URL", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{endpoint: u.String(), client: client}, nil
}

// Endpoint returns the URL that requests are posted to
func (t *HTTP) Endpoint() string { return t.endpoint }

// Execute posts the operation and returns a channel that delivers the one result
func (t *HTTP) Execute(ctx context.Context, op *operation.Operation) <-chan *operation.Result {
	return operation.Single(t.do(ctx, op))
}

func (t *HTTP) do(ctx context.Context, op *operation.Operation) *operation.Result {
	ordered := requestBody(op)
	body, err := json.Marshal(&ordered)
	if err != nil {
		return &operation.Result{NetworkError: errors.Wrap(err, "encoding request")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return &operation.Result{NetworkError: errors.Wrap(err, "creating request")}
	}
	for k, v := range op.Headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &operation.Result{NetworkError: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return &operation.Result{NetworkError: errors.Wrap(err, "reading response")}
	}

	var r response
	decodeErr := r.decode(b)
	switch {
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		// Keep whatever GraphQL errors the server sent along with the status
		result := r.result()
		result.NetworkError = &ServerError{StatusCode: resp.StatusCode, Body: string(b)}
		return result
	case decodeErr != nil:
		return &operation.Result{NetworkError: &ServerParseError{StatusCode: resp.StatusCode, Err: decodeErr}}
	}
	return r.result()
}

// requestBody builds the JSON request with fields in a fixed order (operationName, query,
// variables, extensions) which makes requests easier to read in logs and proxies
func requestBody(op *operation.Operation) jsonmap.Ordered {
	body := jsonmap.Ordered{Data: make(map[string]interface{}, 4)}
	add := func(k string, v interface{}) {
		body.Order = append(body.Order, k)
		body.Data[k] = v
	}
	if op.Name != "" {
		add("operationName", op.Name)
	}
	add("query", op.Query)
	if len(op.Variables) > 0 {
		add("variables", op.Variables)
	}
	if len(op.Extensions) > 0 {
		add("extensions", op.Extensions)
	}
	return body
}

// response is the body of a GraphQL response as decoded from JSON
type response struct {
	Data       map[string]interface{} `json:"data"`
	Errors     gqlerror.List          `json:"errors"`
	Extensions map[string]interface{} `json:"extensions"`
}

func (r *response) decode(b []byte) error {
	if err := jsonutil.NewDecoder(bytes.NewReader(b)).Decode(r); err != nil {
		return err
	}
	if r.Data == nil && len(r.Errors) == 0 {
		return errors.New("response has neither data nor errors")
	}
	jsonutil.FixMap(r.Data)
	jsonutil.FixMap(r.Extensions)
	return nil
}

func (r *response) result() *operation.Result {
	return &operation.Result{Data: r.Data, Errors: r.Errors, Extensions: r.Extensions}
}
