package listing

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-erp/aurora-erp/internal/filter"
	"github.com/aurora-erp/aurora-erp/internal/platform/db"
)

// Repository executes listing queries against PostgreSQL. All identifiers in
// the generated SQL come from entity configuration; user values only ever
// appear as bound parameters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Select runs the projected page query and maps rows by field name.
func (r *Repository) Select(ctx context.Context, q Query) ([]map[string]any, error) {
	sql, args := buildSelect(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.WrapError("listing: select", err)
	}
	defer rows.Close()

	descriptions := rows.FieldDescriptions()
	var records []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, db.WrapError("listing: scan", err)
		}
		record := make(map[string]any, len(values))
		for i, d := range descriptions {
			record[string(d.Name)] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapError("listing: iterate", err)
	}
	return records, nil
}

// Count returns the total row count for the identical predicate set.
func (r *Repository) Count(ctx context.Context, q Query) (int, error) {
	sql, args := buildCount(q)
	var total int
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, db.WrapError("listing: count", err)
	}
	return total, nil
}

func buildSelect(q Query) (string, []any) {
	base := q.Schema.Entity.Table

	projection := make([]string, 0, len(q.Fields)+len(q.Lookups))
	for _, f := range q.Fields {
		projection = append(projection, fmt.Sprintf("%s.%s AS %s", base, f.Column, f.Name))
	}
	joinsByField := make(map[string]int, len(q.Lookups))
	joins := make([]string, 0, len(q.Lookups))
	for i, lk := range q.Lookups {
		alias := fmt.Sprintf("lk%d", i)
		joinsByField[lk.Field.Name] = i
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s",
			lk.Table, alias, alias, lk.KeyColumn, base, lk.Field.Column))
		projection = append(projection, fmt.Sprintf("%s.%s AS %s_display", alias, lk.DisplayColumn, lk.Field.Name))
	}

	where, args := whereClause(q, base)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(base)
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s.%s %s", base, q.SortColumn, direction))
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset))
	}
	return sb.String(), args
}

func buildCount(q Query) (string, []any) {
	base := q.Schema.Entity.Table
	where, args := whereClause(q, base)
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", base)
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, args
}

// whereClause qualifies predicate columns with the base table and appends
// the implicit soft-delete clause. The count query shares this so totals and
// pages always reflect the same filter set.
func whereClause(q Query, base string) (string, []any) {
	preds := make([]filter.Predicate, 0, len(q.Predicates)+1)
	for _, p := range q.Predicates {
		p.Column = base + "." + p.Column
		preds = append(preds, p)
	}
	if !q.IncludeDeleted {
		preds = append(preds, filter.Predicate{
			Column: base + ".is_deleted",
			Op:     filter.OpEq,
			Values: []any{false},
		})
	}
	return filter.Join(preds, 1)
}
