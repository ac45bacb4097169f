package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/geocoder89/kidshub/internal/store"
)

var _ store.Store = (*Rest)(nil)

// TokenSource supplies the bearer token for row access. Auth implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Rest is the row store client for /rest/v1/:table.
type Rest struct {
	req    requester
	tokens TokenSource
}

func NewRest(cfg Config, tokens TokenSource) *Rest {
	cfg.defaults()
	return &Rest{
		req:    requester{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, hc: cfg.HTTPClient},
		tokens: tokens,
	}
}

const (
	preferReturn = "return=representation"
	preferUpsert = "resolution=merge-duplicates,return=representation"
)

func (r *Rest) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := encodeFilters(q.Filters)
	if len(q.Order) > 0 {
		params.Set("order", store.EncodeOrder(q.Order))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var rows []store.Row
	if err := r.call(ctx, http.MethodGet, table, params, nil, nil, &rows); err != nil {
		return nil, err
	}
	return nonNil(rows), nil
}

func (r *Rest) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	var out []store.Row
	headers := map[string]string{"Prefer": preferReturn}
	if err := r.call(ctx, http.MethodPost, table, nil, headers, rows, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (r *Rest) Update(ctx context.Context, table string, values store.Row, filters ...store.Filter) ([]store.Row, error) {
	if err := (store.Query{Filters: filters}).Validate(); err != nil {
		return nil, err
	}

	var out []store.Row
	headers := map[string]string{"Prefer": preferReturn}
	if err := r.call(ctx, http.MethodPatch, table, encodeFilters(filters), headers, values, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (r *Rest) Upsert(ctx context.Context, table string, row store.Row, onConflict string) ([]store.Row, error) {
	params := url.Values{}
	if onConflict != "" {
		params.Set("on_conflict", onConflict)
	}

	var out []store.Row
	headers := map[string]string{"Prefer": preferUpsert}
	if err := r.call(ctx, http.MethodPost, table, params, headers, []store.Row{row}, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (r *Rest) Delete(ctx context.Context, table string, filters ...store.Filter) error {
	if err := (store.Query{Filters: filters}).Validate(); err != nil {
		return err
	}
	return r.call(ctx, http.MethodDelete, table, encodeFilters(filters), nil, nil, nil)
}

func (r *Rest) call(ctx context.Context, method, table string, params url.Values, headers map[string]string, in, out any) error {
	if !store.KnownTable(table) {
		return fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}

	token := ""
	if r.tokens != nil {
		t, err := r.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		token = t
	}

	err := r.req.do(ctx, method, "/rest/v1/"+table, params, token, headers, in, out)

	var he *httpError
	if errors.As(err, &he) {
		return &store.Error{Status: he.Status, Code: he.Code, Message: he.Message}
	}
	return err
}

func encodeFilters(filters []store.Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, f.EncodeValue())
	}
	return params
}

func nonNil(rows []store.Row) []store.Row {
	if rows == nil {
		return []store.Row{}
	}
	return rows
}
