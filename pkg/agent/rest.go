package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"ares/go-client/pkg/identity"
)

// RestActor calls an HTTP service and proves the caller's identity on every
// request with signed headers (see VerifyRequest).
type RestActor struct {
	Name     string
	baseURL  *url.URL
	identity identity.Identity
	rest     *resty.Client
	now      func() time.Time
}

type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

type RequestOption func(*restRequest)

type restRequest struct {
	headers map[string]string
	params  url.Values
}

func WithHeader(key, value string) RequestOption {
	return func(r *restRequest) { r.headers[key] = value }
}

func WithQuery(key, value string) RequestOption {
	return func(r *restRequest) { r.params.Add(key, value) }
}

func NewRestActor(name, baseURL string, id identity.Identity, timeout time.Duration) (*RestActor, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("rest service %s: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("rest service %s: base url %q must be absolute", name, baseURL)
	}
	if id == nil {
		id = identity.Anonymous{}
	}
	rest := resty.New()
	if timeout > 0 {
		rest.SetTimeout(timeout)
	}
	return &RestActor{Name: name, baseURL: u, identity: id, rest: rest, now: time.Now}, nil
}

func (a *RestActor) Identity() identity.Identity { return a.identity }

func (a *RestActor) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodGet, path, nil, opts...)
}

func (a *RestActor) Post(ctx context.Context, path string, body []byte, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodPost, path, body, opts...)
}

func (a *RestActor) Put(ctx context.Context, path string, body []byte, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodPut, path, body, opts...)
}

func (a *RestActor) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends one signed request. Statuses of 400 and above come back as
// *HTTPError.
func (a *RestActor) Do(ctx context.Context, method, path string, body []byte, opts ...RequestOption) (*Response, error) {
	req := restRequest{headers: map[string]string{}, params: url.Values{}}
	for _, opt := range opts {
		opt(&req)
	}
	target := *a.baseURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target.Path = a.baseURL.Path + path
	target.RawQuery = req.params.Encode()

	requestID := uuid.NewString()
	proof, err := proofHeaders(a.identity, method, target.RequestURI(), a.now(), requestID, body)
	if err != nil {
		return nil, err
	}
	r := a.rest.R().SetContext(ctx).SetHeaders(req.headers).SetHeaders(proof)
	if body != nil {
		r.SetBody(body)
	}
	resp, err := r.Execute(method, target.String())
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &HTTPError{Status: resp.StatusCode(), Body: resp.Body()}
	}
	return &Response{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body(), RequestID: requestID}, nil
}
