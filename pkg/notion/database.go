// Package notion is a rate-limited handle on one Notion database: filtered
// page listing across cursors and page property updates.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRateLimit is Notion's documented average request rate.
const DefaultRateLimit = 3

// Option configures a Database.
type Option func(*Database)

// WithRateLimit overrides DefaultRateLimit. A non-positive rps disables
// limiting.
func WithRateLimit(rps float64) Option {
	return func(d *Database) {
		if rps > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			d.limiter = nil
		}
	}
}

// WithPageSize sets the number of pages requested per query call. Notion
// caps it at 100.
func WithPageSize(n int) Option {
	return func(d *Database) {
		d.pageSize = min(max(n, 0), 100)
	}
}

// Database reads and updates the pages of one Notion database.
type Database struct {
	id       notionapi.DatabaseID
	dbs      notionapi.DatabaseService
	pages    notionapi.PageService
	limiter  *rate.Limiter
	pageSize int
}

// NewDatabase opens database dbID with an integration token.
func NewDatabase(token, dbID string, opts ...Option) *Database {
	c := notionapi.NewClient(notionapi.Token(token))
	return newDatabase(c.Database, c.Page, dbID, opts...)
}

func newDatabase(dbs notionapi.DatabaseService, pages notionapi.PageService, dbID string, opts ...Option) *Database {
	d := &Database{
		id:      notionapi.DatabaseID(dbID),
		dbs:     dbs,
		pages:   pages,
		limiter: rate.NewLimiter(DefaultRateLimit, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the database id.
func (d *Database) ID() string { return string(d.id) }

func (d *Database) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return eris.Wrap(d.limiter.Wait(ctx), "notion: rate limit")
}

type queryResult struct {
	resp *notionapi.DatabaseQueryResponse
	err  error
}

func (d *Database) query(ctx context.Context, filter notionapi.Filter, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := d.dbs.Query(ctx, d.id, &notionapi.DatabaseQueryRequest{
		Filter:      filter,
		StartCursor: cursor,
		PageSize:    d.pageSize,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", d.id)
	}
	return resp, nil
}

// Pages returns every page matching filter, following cursors. A nil
// filter lists the whole database. The next batch is requested while the
// current one is collected.
func (d *Database) Pages(ctx context.Context, filter notionapi.Filter) ([]notionapi.Page, error) {
	resp, err := d.query(ctx, filter, "")
	if err != nil {
		return nil, err
	}

	var all []notionapi.Page
	for {
		var next chan queryResult
		if resp.HasMore {
			next = make(chan queryResult, 1)
			go func(cursor notionapi.Cursor) {
				r, err := d.query(ctx, filter, cursor)
				next <- queryResult{resp: r, err: err}
			}(resp.NextCursor)
		}

		all = append(all, resp.Results...)
		if next == nil {
			return all, nil
		}

		res := <-next
		if res.err != nil {
			return nil, eris.Wrapf(res.err, "notion: page %d of results", len(all))
		}
		resp = res.resp
	}
}

// Update writes props onto page pageID. Properties not in props are left
// unchanged.
func (d *Database) Update(ctx context.Context, pageID string, props notionapi.Properties) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	if _, err := d.pages.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrapf(err, "notion: update page %s", pageID)
	}
	return nil
}
