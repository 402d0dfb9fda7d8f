package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across land_requests and violations
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	scopeClause := ""
	if len(q.ScopeAreaIDs) > 0 {
		placeholders := make([]string, len(q.ScopeAreaIDs))
		for i, id := range q.ScopeAreaIDs {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, id)
			argN++
		}
		scopeClause = " AND area_id IN (" + strings.Join(placeholders, ", ") + ")"
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultRequest {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'request'::text AS type, lr.id, lr.purpose AS title,
				ts_headline('english', coalesce(lr.quoted_by, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				lr.area_id, lr.plot_id::text,
				ts_rank(lr.fts, %s) AS rank
			FROM land_requests lr
			WHERE lr.fts @@ %s%s`, tsQuery, tsQuery, tsQuery, strings.ReplaceAll(scopeClause, "area_id", "lr.area_id")))
	}

	if q.FilterType == "" || q.FilterType == ResultViolation {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'violation'::text AS type, v.id, coalesce(v.owner_email, '') AS title,
				ts_headline('english', coalesce(v.admin_comments, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				v.area_id, v.plot_id,
				ts_rank(v.fts, %s) AS rank
			FROM violations v
			WHERE v.fts @@ %s%s`, tsQuery, tsQuery, tsQuery, strings.ReplaceAll(scopeClause, "area_id", "v.area_id")))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, area_id, plot_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.AreaID, &r.PlotID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]RequestRecord, []ViolationRecord, error) {
	requestRows, err := p.db.QueryContext(ctx, `
		SELECT id, purpose, quoted_by, area_id, plot_id::text, workflow_stage
		FROM land_requests
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load requests: %w", err)
	}
	defer requestRows.Close()

	requests := make([]RequestRecord, 0)
	for requestRows.Next() {
		var r RequestRecord
		if err := requestRows.Scan(&r.ID, &r.Purpose, &r.QuotedBy, &r.AreaID, &r.PlotID, &r.Stage); err != nil {
			return nil, nil, fmt.Errorf("scan request record: %w", err)
		}
		requests = append(requests, r)
	}
	if err := requestRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate request records: %w", err)
	}

	violationRows, err := p.db.QueryContext(ctx, `
		SELECT id, coalesce(admin_comments, ''), coalesce(owner_email, ''), area_id, plot_id, violation_status
		FROM violations
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load violations: %w", err)
	}
	defer violationRows.Close()

	violations := make([]ViolationRecord, 0)
	for violationRows.Next() {
		var v ViolationRecord
		if err := violationRows.Scan(&v.ID, &v.Comments, &v.OwnerEmail, &v.AreaID, &v.PlotID, &v.Flagged); err != nil {
			return nil, nil, fmt.Errorf("scan violation record: %w", err)
		}
		violations = append(violations, v)
	}
	if err := violationRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate violation records: %w", err)
	}

	return requests, violations, nil
}
