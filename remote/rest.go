package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hupe1980/vecmigrate/model"
)

// RESTClient talks to the service's JSON API. Resource identifiers are
// full resource paths relative to the API root (for example
// "projects/p/locations/l/indexes/42").
type RESTClient struct {
	baseURL    string
	parent     string
	httpClient *http.Client
	token      func(ctx context.Context) (string, error)
}

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *RESTClient) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithTokenSource supplies a bearer token per request.
func WithTokenSource(fn func(ctx context.Context) (string, error)) RESTOption {
	return func(r *RESTClient) {
		r.token = fn
	}
}

// NewRESTClient creates a client scoped to parent (the service's
// project/location scope) under baseURL.
func NewRESTClient(baseURL, parent string, optFns ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		parent:     strings.Trim(parent, "/"),
		httpClient: http.DefaultClient,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(c)
		}
	}
	return c
}

func (c *RESTClient) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// classify maps an HTTP status to the error taxonomy. Throttling and
// server-side failures are retryable; everything else is not.
func classify(status int, body []byte) error {
	err := fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusNotFound:
		return Fatal(fmt.Errorf("%w: %w", ErrNotFound, err))
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return Transient(err)
	default:
		return Fatal(err)
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return Fatal(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return Fatal(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return Fatal(fmt.Errorf("token source: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return Fatal(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// ListIndexes implements Client.
func (c *RESTClient) ListIndexes(ctx context.Context) ([]Index, error) {
	var out struct {
		Indexes []Index `json:"indexes"`
	}
	if err := c.do(ctx, http.MethodGet, c.parent+"/indexes", nil, &out); err != nil {
		return nil, err
	}
	return out.Indexes, nil
}

// ListEndpoints implements Client.
func (c *RESTClient) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var out struct {
		Endpoints []Endpoint `json:"indexEndpoints"`
	}
	if err := c.do(ctx, http.MethodGet, c.parent+"/indexEndpoints", nil, &out); err != nil {
		return nil, err
	}
	return out.Endpoints, nil
}

// GetIndex implements Client. id is the full resource path.
func (c *RESTClient) GetIndex(ctx context.Context, id string) (Index, error) {
	var out Index
	if err := c.do(ctx, http.MethodGet, id, nil, &out); err != nil {
		return Index{}, err
	}
	return out, nil
}

// operationEnvelope is the wire form of a long-running operation.
type operationEnvelope struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *operationError `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// restOperation polls the operation resource until the envelope reports
// done, then decodes the response payload.
type restOperation[T any] struct {
	client *RESTClient
	name   string
}

func (op *restOperation[T]) Poll(ctx context.Context) (OperationStatus[T], error) {
	var env operationEnvelope
	if err := op.client.do(ctx, http.MethodGet, op.name, nil, &env); err != nil {
		return OperationStatus[T]{}, err
	}

	if !env.Done {
		return OperationStatus[T]{State: OperationPending}, nil
	}
	if env.Error != nil {
		return OperationStatus[T]{
			State: OperationFailed,
			Err:   fmt.Errorf("operation %s failed: code %d: %s", op.name, env.Error.Code, env.Error.Message),
		}, nil
	}

	var result T
	if len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, &result); err != nil {
			return OperationStatus[T]{}, Fatal(fmt.Errorf("decode operation response: %w", err))
		}
	}
	return OperationStatus[T]{State: OperationDone, Result: result}, nil
}

func (c *RESTClient) startOperation(ctx context.Context, path string, in any) (string, error) {
	var env operationEnvelope
	if err := c.do(ctx, http.MethodPost, path, in, &env); err != nil {
		return "", err
	}
	if env.Name == "" {
		return "", Fatal(fmt.Errorf("operation response without a name"))
	}
	return env.Name, nil
}

// CreateIndex implements Client.
func (c *RESTClient) CreateIndex(ctx context.Context, spec IndexSpec) (Operation[Index], error) {
	name, err := c.startOperation(ctx, c.parent+"/indexes", spec)
	if err != nil {
		return nil, err
	}
	return &restOperation[Index]{client: c, name: name}, nil
}

// CreateEndpoint implements Client.
func (c *RESTClient) CreateEndpoint(ctx context.Context, spec EndpointSpec) (Operation[Endpoint], error) {
	name, err := c.startOperation(ctx, c.parent+"/indexEndpoints", spec)
	if err != nil {
		return nil, err
	}
	return &restOperation[Endpoint]{client: c, name: name}, nil
}

// DeployIndex implements Client.
func (c *RESTClient) DeployIndex(ctx context.Context, endpointID string, spec DeploymentSpec) (Operation[Endpoint], error) {
	in := struct {
		DeployedIndex DeploymentSpec `json:"deployedIndex"`
	}{DeployedIndex: spec}

	name, err := c.startOperation(ctx, endpointID+":deployIndex", in)
	if err != nil {
		return nil, err
	}
	return &restOperation[Endpoint]{client: c, name: name}, nil
}

// UpsertDatapoints implements Client.
func (c *RESTClient) UpsertDatapoints(ctx context.Context, indexID string, datapoints []model.Datapoint) error {
	in := struct {
		Datapoints []model.Datapoint `json:"datapoints"`
	}{Datapoints: datapoints}

	return c.do(ctx, http.MethodPost, indexID+":upsertDatapoints", in, nil)
}

var _ Client = (*RESTClient)(nil)
