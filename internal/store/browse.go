package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rahul/exoscope/internal/governance"
)

const (
	DefaultBrowseLimit = 50
	MaxBrowseLimit     = 100
	maxSearchLength    = 100
)

// BrowseRequest asks for one page of a table, optionally filtered by a substring match on
// a single column.
type BrowseRequest struct {
	Table        string
	Page         int
	Limit        int
	Search       string
	SearchColumn string
}

// BrowsePage is one page of raw table rows.
type BrowsePage struct {
	Rows       []Row    `json:"data"`
	Columns    []string `json:"columns"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int64    `json:"total_pages"`
}

// PlanetMatch is the first row found for a planet or host name.
type PlanetMatch struct {
	Found   bool   `json:"found"`
	Data    Row    `json:"data,omitempty"`
	Dataset string `json:"dataset,omitempty"`
}

// planetColumns maps each dataset to the column holding a planet or host identifier.
var planetColumns = []struct{ table, column string }{
	{"k2", "hostname"},
	{"toi", "toi"},
	{"cum", "pl_name"},
}

type browseQueries struct {
	count string
	data  string
	args  []any
}

// normalize clamps paging values and trims the search text.
func (r BrowseRequest) normalize() BrowseRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit <= 0 {
		r.Limit = DefaultBrowseLimit
	}
	if r.Limit > MaxBrowseLimit {
		r.Limit = MaxBrowseLimit
	}
	r.Search = strings.TrimSpace(r.Search)
	if len(r.Search) > maxSearchLength {
		r.Search = r.Search[:maxSearchLength]
	}
	r.SearchColumn = strings.TrimSpace(r.SearchColumn)
	return r
}

func buildBrowseQueries(r BrowseRequest) (browseQueries, error) {
	if !governance.ValidIdentifier(r.Table) {
		return browseQueries{}, fmt.Errorf("%w: %s", ErrTableNotFound, r.Table)
	}
	table := pgx.Identifier{r.Table}.Sanitize()
	offset := (r.Page - 1) * r.Limit

	if r.Search != "" && r.SearchColumn != "" {
		if !governance.ValidIdentifier(r.SearchColumn) {
			return browseQueries{}, fmt.Errorf("invalid search column %q", r.SearchColumn)
		}
		col := pgx.Identifier{r.SearchColumn}.Sanitize()
		where := fmt.Sprintf(" WHERE %s::text ILIKE $1", col)
		return browseQueries{
			count: "SELECT COUNT(*) FROM " + table + where,
			data:  fmt.Sprintf("SELECT * FROM %s%s LIMIT %d OFFSET %d", table, where, r.Limit, offset),
			args:  []any{"%" + r.Search + "%"},
		}, nil
	}

	return browseQueries{
		count: "SELECT COUNT(*) FROM " + table,
		data:  fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", table, r.Limit, offset),
	}, nil
}

// Browse returns one page of a table. The search column must belong to the table.
func (d *DB) Browse(ctx context.Context, req BrowseRequest) (BrowsePage, error) {
	req = req.normalize()
	if !d.guard.Allowed(req.Table) {
		return BrowsePage{}, fmt.Errorf("%w: %s", ErrTableNotFound, req.Table)
	}

	if req.Search != "" && req.SearchColumn != "" {
		cols, err := d.ListColumns(ctx, req.Table)
		if err != nil {
			return BrowsePage{}, err
		}
		if !contains(cols, req.SearchColumn) {
			return BrowsePage{}, fmt.Errorf("invalid search column %q", req.SearchColumn)
		}
	}

	q, err := buildBrowseQueries(req)
	if err != nil {
		return BrowsePage{}, err
	}

	var total int64
	if err := d.Pool.QueryRow(ctx, q.count, q.args...).Scan(&total); err != nil {
		return BrowsePage{}, fmt.Errorf("count rows: %w", err)
	}

	rs, err := collect(ctx, d.Pool, q.data, q.args...)
	if err != nil {
		return BrowsePage{}, err
	}

	return BrowsePage{
		Rows:       rs.Rows,
		Columns:    rs.Columns,
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: (total + int64(req.Limit) - 1) / int64(req.Limit),
	}, nil
}

// FindPlanet searches each dataset in turn and returns the first matching row.
func (d *DB) FindPlanet(ctx context.Context, name string) (PlanetMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PlanetMatch{}, fmt.Errorf("planet name is required")
	}

	for _, pc := range planetColumns {
		if !d.guard.Allowed(pc.table) {
			continue
		}
		sql := fmt.Sprintf("SELECT * FROM %s WHERE %s::text ILIKE $1 LIMIT 1",
			pgx.Identifier{pc.table}.Sanitize(), pgx.Identifier{pc.column}.Sanitize())
		rs, err := collect(ctx, d.Pool, sql, "%"+name+"%")
		if err != nil {
			// A dataset without the expected column should not hide matches in the others.
			continue
		}
		if len(rs.Rows) > 0 {
			return PlanetMatch{Found: true, Data: rs.Rows[0], Dataset: pc.table}, nil
		}
	}
	return PlanetMatch{Found: false}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
