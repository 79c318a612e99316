package gateway

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"meridian/internal/models"
	"meridian/internal/observability"

	"resty.dev/v3"
)

// RetryPolicy is the explicit backoff policy applied to gateway requests.
// Modeled as configuration on the HTTP client, never as a transport
// override.
type RetryPolicy struct {
	Count   int
	Wait    time.Duration
	MaxWait time.Duration
}

// Options configures the REST gateway.
type Options struct {
	BaseURL  string
	AnonKey  string
	Sessions SessionProvider
	Retry    RetryPolicy
}

// REST is the concrete Remote Data Gateway over the hosted backend's HTTP
// surface. It implements Executor.
type REST struct {
	client   *resty.Client
	baseURL  string
	anonKey  string
	sessions SessionProvider
}

// NewREST builds a gateway client for the hosted backend at opts.BaseURL.
func NewREST(opts Options) *REST {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetRetryCount(opts.Retry.Count).
		SetRetryWaitTime(opts.Retry.Wait).
		SetRetryMaxWaitTime(opts.Retry.MaxWait)

	sessions := opts.Sessions
	if sessions == nil {
		sessions = AnonymousSessions{}
	}

	return &REST{
		client:   client,
		baseURL:  opts.BaseURL,
		anonKey:  opts.AnonKey,
		sessions: sessions,
	}
}

// Close releases the underlying HTTP client.
func (g *REST) Close() error {
	return g.client.Close()
}

// From starts a query builder against the named relation.
func (g *REST) From(table string) *Builder {
	return From(g, table)
}

// Sessions exposes the gateway's session provider.
func (g *REST) Sessions() SessionProvider {
	return g.sessions
}

func (g *REST) request(ctx context.Context) *resty.Request {
	req := g.client.R().WithContext(ctx).
		SetHeader("apikey", g.anonKey).
		SetHeader("Accept", "application/json")

	token := g.anonKey
	if s, err := g.sessions.Session(ctx); err == nil && s != nil {
		token = s.AccessToken
	}
	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

// ExecQuery implements Executor.
func (g *REST) ExecQuery(ctx context.Context, q Query, dest any) error {
	var code string
	defer observability.TrackGateway("select", q.Table, &code)()
	_, span := observability.TraceGatewayOp(ctx, "select", q.Table)
	defer span.End()

	resp, err := g.request(ctx).
		SetQueryParamsFromValues(q.Params()).
		Get("/rest/v1/" + q.Table)
	if err != nil {
		cerr := classifyTransport(err)
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	if resp.IsError() {
		cerr := classifyHTTP(resp.StatusCode(), resp.Bytes())
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Bytes(), dest); err != nil {
		code = models.CodeInternal
		return models.NewInternalError(err)
	}
	return nil
}

// ExecInsert implements Executor. When returned is non-nil the backend is
// asked for the created row representation.
func (g *REST) ExecInsert(ctx context.Context, table string, row any, returned any) error {
	var code string
	defer observability.TrackGateway("insert", table, &code)()
	_, span := observability.TraceGatewayOp(ctx, "insert", table)
	defer span.End()

	req := g.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(row)
	if returned != nil {
		req.SetHeader("Prefer", "return=representation")
	} else {
		req.SetHeader("Prefer", "return=minimal")
	}

	resp, err := req.Post("/rest/v1/" + table)
	if err != nil {
		cerr := classifyTransport(err)
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	if resp.IsError() {
		cerr := classifyHTTP(resp.StatusCode(), resp.Bytes())
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	if returned == nil || len(resp.Bytes()) == 0 {
		return nil
	}

	// Inserts return an array of created rows. A backend configured for
	// minimal returns may send nothing; the caller falls back to a re-fetch.
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.Bytes(), &rows); err != nil || len(rows) == 0 {
		return nil
	}
	if err := json.Unmarshal(rows[0], returned); err != nil {
		code = models.CodeInternal
		return models.NewInternalError(err)
	}
	return nil
}

// ExecUpdate implements Executor.
func (g *REST) ExecUpdate(ctx context.Context, table string, patch any, filters []Filter) error {
	var code string
	defer observability.TrackGateway("update", table, &code)()
	_, span := observability.TraceGatewayOp(ctx, "update", table)
	defer span.End()

	resp, err := g.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParamsFromValues(filterParams(filters)).
		SetBody(patch).
		Patch("/rest/v1/" + table)
	if err != nil {
		cerr := classifyTransport(err)
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	if resp.IsError() {
		cerr := classifyHTTP(resp.StatusCode(), resp.Bytes())
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	return nil
}

// ExecDelete implements Executor.
func (g *REST) ExecDelete(ctx context.Context, table string, filters []Filter) error {
	var code string
	defer observability.TrackGateway("delete", table, &code)()
	_, span := observability.TraceGatewayOp(ctx, "delete", table)
	defer span.End()

	resp, err := g.request(ctx).
		SetQueryParamsFromValues(filterParams(filters)).
		Delete("/rest/v1/" + table)
	if err != nil {
		cerr := classifyTransport(err)
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	if resp.IsError() {
		cerr := classifyHTTP(resp.StatusCode(), resp.Bytes())
		code = models.ErrorCode(cerr)
		span.RecordError(cerr)
		return cerr
	}
	return nil
}

func filterParams(filters []Filter) url.Values {
	v := url.Values{}
	for _, f := range filters {
		f.apply(v)
	}
	return v
}
