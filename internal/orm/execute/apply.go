package execute

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormcore/internal/orm/deletion"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// Beginner starts transactions
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Applier carries out delete actions against a PostgreSQL database
type Applier struct {
	db     Beginner
	model  *schema.FrozenModel
	logger *zap.Logger
}

// NewApplier creates an applier for model. A nil logger disables logging.
func NewApplier(db Beginner, model *schema.FrozenModel, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{db: db, model: model, logger: logger}
}

// Apply runs a delete action in one transaction: foreign keys are set to
// null, dependent rows are deleted deepest first, then the target row.
// It returns the number of rows changed.
func (a *Applier) Apply(ctx context.Context, action *deletion.Action) (int64, error) {
	if action.Kind == deletion.Block {
		return 0, fmt.Errorf("%w by %s", ErrDeleteBlocked, action.BlockedBy)
	}

	statements, err := a.statements(action)
	if err != nil {
		return 0, err
	}

	tx, err := a.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	total, err := a.exec(ctx, tx, statements, action.Target)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	a.logger.Info("delete applied",
		zap.String("entity", action.Target.Entity),
		zap.Int64("rows", total))
	return total, nil
}

// Delete checks and carries out the delete of one row inside a single
// transaction, so the references engine reads are the ones the statements
// act on. A blocked delete returns its action together with
// ErrDeleteBlocked and changes nothing.
func (a *Applier) Delete(ctx context.Context, engine *deletion.Engine, entity string, key any) (*deletion.Action, int64, error) {
	tx, err := a.begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	action, err := engine.CheckDelete(ctx, entity, key, NewSQLSource(tx, WithSQLLogger(a.logger)))
	if err != nil {
		return nil, 0, ConvertDBError(err)
	}
	if action.Kind == deletion.Block {
		return action, 0, fmt.Errorf("%w by %s", ErrDeleteBlocked, action.BlockedBy)
	}

	statements, err := a.statements(action)
	if err != nil {
		return nil, 0, err
	}
	total, err := a.exec(ctx, tx, statements, action.Target)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	a.logger.Info("delete applied",
		zap.String("entity", entity),
		zap.String("kind", action.Kind.String()),
		zap.Int64("rows", total))
	return action, total, nil
}

func (a *Applier) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// exec runs statements in order and sums the rows they change. The last
// statement deletes the target; ErrNoRows is returned when it is gone.
func (a *Applier) exec(ctx context.Context, tx *sql.Tx, statements []statement, target deletion.Row) (int64, error) {
	var total int64
	for i, stmt := range statements {
		a.logger.Debug("exec", zap.String("sql", stmt.query), zap.Int("keys", len(stmt.keys)))

		result, err := tx.ExecContext(ctx, stmt.query, stmt.arg())
		if err != nil {
			return 0, ConvertDBError(err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if i == len(statements)-1 && n == 0 {
			return 0, fmt.Errorf("%w: %s %v", ErrNoRows, target.Entity, target.Key)
		}
		total += n
	}
	return total, nil
}

type statement struct {
	query string
	keys  []any
	// single binds the one key directly instead of as an array
	single bool
}

func (s statement) arg() any {
	if s.single {
		return s.keys[0]
	}
	return pq.Array(s.keys)
}

// statements groups the action into one UPDATE per nulled foreign key and
// one DELETE per run of rows of the same entity
func (a *Applier) statements(action *deletion.Action) ([]statement, error) {
	var stmts []statement

	updates := make(map[string]int)
	for _, u := range action.Updates {
		entity, err := a.model.Lookup(u.Entity)
		if err != nil {
			return nil, err
		}
		id := u.Entity + "." + u.Property
		if i, ok := updates[id]; ok {
			stmts[i].keys = append(stmts[i].keys, u.Key)
			continue
		}
		updates[id] = len(stmts)
		stmts = append(stmts, statement{
			// UPDATE "products" SET "category_id" = NULL WHERE "id" = ANY($1)
			query: fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ANY($1)",
				pq.QuoteIdentifier(entity.TableName),
				column(u.Property, ""),
				column(entity.PrimaryKey().Name, "")),
			keys: []any{u.Key},
		})
	}

	last := ""
	for _, row := range action.Deletes {
		if row.Entity == last {
			stmts[len(stmts)-1].keys = append(stmts[len(stmts)-1].keys, row.Key)
			continue
		}
		entity, err := a.model.Lookup(row.Entity)
		if err != nil {
			return nil, err
		}
		last = row.Entity
		stmts = append(stmts, statement{
			query: deleteQuery(entity, "= ANY($1)"),
			keys:  []any{row.Key},
		})
	}

	target, err := a.model.Lookup(action.Target.Entity)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, statement{
		query:  deleteQuery(target, "= $1"),
		keys:   []any{action.Target.Key},
		single: true,
	})

	return stmts, nil
}

// deleteQuery renders DELETE FROM "orders" WHERE "id" <match>
func deleteQuery(entity *schema.Entity, match string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s %s",
		pq.QuoteIdentifier(entity.TableName),
		column(entity.PrimaryKey().Name, ""),
		match)
}
