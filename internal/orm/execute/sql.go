package execute

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormcore/internal/orm/deletion"
	"github.com/conduit-lang/ormcore/internal/orm/projection"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// Querier is an interface for executing SQL queries, allowing for testing and instrumentation
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// SQLSource fetches plan steps from a PostgreSQL database. Every call
// issues at most one query; child steps batch their parent keys with
// = ANY($1).
type SQLSource struct {
	db     Querier
	logger *zap.Logger
}

// SQLOption configures an SQLSource
type SQLOption func(*SQLSource)

// WithSQLLogger sets the logger used to trace queries
func WithSQLLogger(logger *zap.Logger) SQLOption {
	return func(s *SQLSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQLSource creates a source reading through db
func NewSQLSource(db Querier, opts ...SQLOption) *SQLSource {
	s := &SQLSource{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchRoot fetches the root rows, by primary key when keys are given
// Example: SELECT "id" AS "Id", "name" AS "Name" FROM "categories" WHERE "id" = ANY($1)
func (s *SQLSource) FetchRoot(ctx context.Context, step *projection.FetchStep, keys []interface{}) ([]Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s",
		selectList(step.Properties, ""), pq.QuoteIdentifier(step.Entity.TableName))

	var args []interface{}
	if len(keys) > 0 {
		pk := step.Entity.PrimaryKey()
		query += fmt.Sprintf(" WHERE %s = ANY($1)", column(pk.Name, ""))
		args = append(args, pq.Array(keys))
	}

	return s.query(ctx, query, args...)
}

// FetchBatch fetches the rows of a child step for all parent keys at once
// Example: SELECT ... FROM "products" WHERE "category_id" = ANY($1)
// Many-to-many steps join through the join table and return the matched
// parent key as ParentKeyColumn.
func (s *SQLSource) FetchBatch(ctx context.Context, step *projection.FetchStep, parentKeys []interface{}) ([]Record, error) {
	if len(parentKeys) == 0 {
		return []Record{}, nil
	}

	var query string
	if step.Join == nil {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
			selectList(step.Properties, ""),
			pq.QuoteIdentifier(step.Entity.TableName),
			column(step.MatchKey, ""))
	} else {
		query = fmt.Sprintf("SELECT %s, %s AS %s FROM %s t INNER JOIN %s j ON %s = %s WHERE %s = ANY($1)",
			selectList(step.Properties, "t"),
			column(step.MatchKey, "j"),
			pq.QuoteIdentifier(ParentKeyColumn),
			pq.QuoteIdentifier(step.Entity.TableName),
			pq.QuoteIdentifier(step.Join.TableName),
			column(step.TargetKey, "t"),
			column(step.JoinTargetKey, "j"),
			column(step.MatchKey, "j"))
	}

	return s.query(ctx, query, pq.Array(parentKeys))
}

// Referencing finds the dependent rows whose foreign key is one of keys
// Example: SELECT "id" AS "Id", "category_id" AS "CategoryId" FROM "products" WHERE "category_id" = ANY($1)
func (s *SQLSource) Referencing(ctx context.Context, rel *schema.Relationship, keys []interface{}) ([]deletion.Reference, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if rel.ForeignKey == nil {
		return nil, fmt.Errorf("relationship %s has no foreign key", rel)
	}

	pk := rel.Dependent.PrimaryKey().Name
	fk := rel.ForeignKey.Name
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		selectList([]string{pk, fk}, ""),
		pq.QuoteIdentifier(rel.Dependent.TableName),
		column(fk, ""))

	rows, err := s.query(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}

	refs := make([]deletion.Reference, len(rows))
	for i, row := range rows {
		refs[i] = deletion.Reference{Key: row[pk], Principal: row[fk]}
	}
	return refs, nil
}

func (s *SQLSource) query(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	s.logger.Debug("query", zap.String("sql", query))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", ConvertDBError(err))
	}
	return records, nil
}

// selectList renders properties as snake_case columns aliased back to
// property names
func selectList(properties []string, table string) string {
	cols := make([]string, len(properties))
	for i, p := range properties {
		cols[i] = column(p, table) + " AS " + pq.QuoteIdentifier(p)
	}
	return strings.Join(cols, ", ")
}

func column(property, table string) string {
	col := pq.QuoteIdentifier(schema.ColumnName(property))
	if table == "" {
		return col
	}
	return table + "." + col
}

// scanRecords scans multiple rows into records
func scanRecords(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			// Text columns arrive as []byte
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
