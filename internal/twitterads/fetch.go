package twitterads

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"slices"
)

// page is one response of a cursor-paginated list endpoint.
type page struct {
	// Data holds the page's items.
	Data []Record

	// NextCursor is the cursor for the following page; empty on the last page.
	NextCursor string
}

// Fetch lazily walks a cursor-paginated list endpoint. Each page is requested
// only after every item of the previous page has been yielded, and no further
// requests are made once the consumer stops iterating.
func (c *Client) Fetch(ctx context.Context, path string, params url.Values) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		query := cloneValues(params)

		for {
			p, err := c.fetchPage(ctx, path, query)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, item := range p.Data {
				if !yield(item, nil) {
					return
				}
			}

			if p.NextCursor == "" {
				return
			}
			query.Set("cursor", p.NextCursor)
		}
	}
}

// fetchPage requests a single page.
func (c *Client) fetchPage(ctx context.Context, path string, params url.Values) (*page, error) {
	body, err := c.do(ctx, c.httpClient, http.MethodGet, c.endpoint(path, params), c.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}

	record, err := decodeRecord(body)
	if err != nil {
		return nil, err
	}

	p := &page{}
	if items, ok := record["data"].([]any); ok {
		p.Data = make([]Record, 0, len(items))
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				p.Data = append(p.Data, obj)
			}
		}
	}
	if cursor, ok := record["next_cursor"].(string); ok {
		p.NextCursor = cursor
	}

	return p, nil
}

// cloneValues copies params so pagination never mutates the caller's values.
func cloneValues(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for key, values := range params {
		out[key] = slices.Clone(values)
	}
	return out
}
