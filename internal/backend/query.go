package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query builds one request against a /rest/v1 table.
type Query struct {
	c       *Client
	table   string
	method  string
	params  url.Values
	prefer  []string
	body    any
	authReq bool
}

// From starts a query on table.
func (c *Client) From(table string) *Query {
	return &Query{
		c:      c,
		table:  table,
		method: http.MethodGet,
		params: url.Values{},
	}
}

// Select sets the column list, including embedded relations like "*,profile:profiles(*)".
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// Cs filters rows whose array column contains every value.
func (q *Query) Cs(column string, values ...string) *Query {
	q.params.Add(column, "cs.{"+strings.Join(values, ",")+"}")
	return q
}

// TextSearch applies a full text search on column.
func (q *Query) TextSearch(column, query string) *Query {
	q.params.Add(column, "fts."+query)
	return q
}

func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.params.Set("order", column+"."+dir)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

func (q *Query) Offset(n int) *Query {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Insert makes the query a POST that returns the created rows.
func (q *Query) Insert(row any) *Query {
	q.method = http.MethodPost
	q.body = row
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Update makes the query a PATCH that returns the updated rows.
func (q *Query) Update(patch any) *Query {
	q.method = http.MethodPatch
	q.body = patch
	q.prefer = append(q.prefer, "return=representation")
	return q
}

func (q *Query) Delete() *Query {
	q.method = http.MethodDelete
	return q
}

// Authenticated fails the query with ErrNoAuthToken when no session is stored.
func (q *Query) Authenticated() *Query {
	q.authReq = true
	return q
}

func (q *Query) send(ctx context.Context) (*response, error) {
	token, err := q.c.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if q.authReq && token == "" {
		return nil, ErrNoAuthToken
	}
	resp, err := q.c.do(ctx, request{
		api:     apiRest,
		method:  q.method,
		path:    "/rest/v1/" + q.table,
		query:   q.params,
		token:   token,
		prefer:  q.prefer,
		body:    q.body,
		timeout: q.c.dataTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Execute runs the query and decodes the returned rows into out, which may be nil.
func (q *Query) Execute(ctx context.Context, out any) error {
	resp, err := q.send(ctx)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// Single runs the query and decodes the first row into out.
// An empty result returns ErrNotFound.
func (q *Query) Single(ctx context.Context, out any) error {
	var rows []json.RawMessage
	if err := q.Execute(ctx, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(rows[0], out); err != nil {
		return fmt.Errorf("decode %s row: %w", q.table, err)
	}
	return nil
}

// Count returns the exact number of rows matching the filters.
func (q *Query) Count(ctx context.Context) (int, error) {
	q.method = http.MethodHead
	q.prefer = append(q.prefer, "count=exact")
	resp, err := q.send(ctx)
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.header.Get("Content-Range"))
}

// parseContentRange reads the total from "0-9/42" or "*/42".
func parseContentRange(v string) (int, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("content-range %q has no total", v)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("parse content-range %q: %w", v, err)
	}
	return n, nil
}
