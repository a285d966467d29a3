// Package extract provides raw-matrix producers: a SQL producer backed by
// database/sql and a deterministic synthetic generator.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	// sqlite driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/matrixio"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

// Names accepted in SQLProducer.Args.
const (
	ArgEntity = "entity"
	ArgRows   = "rows"
	ArgSeed   = "seed"
)

// OpenSQLite opens a SQLite database with the pure-Go modernc driver.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", dsn)
	}
	return db, nil
}

// SQLProducer builds a raw matrix from the result set of Query. Args lists,
// in placeholder order, which run inputs are bound to the query.
type SQLProducer struct {
	DB    *sql.DB
	Query string
	Args  []string
}

// NewSQLProducer validates args and returns a producer.
func NewSQLProducer(db *sql.DB, query string, args ...string) (*SQLProducer, error) {
	if db == nil {
		return nil, errors.NewValidationError("db", "database handle is required", nil)
	}
	if query == "" {
		return nil, errors.NewValidationError("query", "query is required", query)
	}
	for _, a := range args {
		switch a {
		case ArgEntity, ArgRows, ArgSeed:
		default:
			return nil, errors.NewValidationError("args", "must be entity, rows or seed", a)
		}
	}
	return &SQLProducer{DB: db, Query: query, Args: args}, nil
}

// Produce runs the query and converts every column of the result into a
// typed column, inferring its kind from the returned values.
func (p *SQLProducer) Produce(ctx context.Context, entity string, rows int, seed int64) (*table.Table, error) {
	bound := make([]any, len(p.Args))
	for i, a := range p.Args {
		switch a {
		case ArgEntity:
			bound[i] = entity
		case ArgRows:
			bound[i] = rows
		case ArgSeed:
			bound[i] = seed
		}
	}

	rs, err := p.DB.QueryContext(ctx, p.Query, bound...)
	if err != nil {
		return nil, errors.Wrap(err, "query raw matrix")
	}
	defer rs.Close()

	names, err := rs.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read result columns")
	}
	cells := make([][]string, len(names))
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rs.Next() {
		if err := rs.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan raw matrix row")
		}
		for j, v := range values {
			cells[j] = append(cells[j], formatCell(v))
		}
	}
	if err := rs.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate raw matrix rows")
	}

	cols := make([]*table.Column, len(names))
	for j, name := range names {
		cols[j] = matrixio.InferColumn(name, cells[j])
	}
	t, err := table.New(nil, cols...)
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("extract").Debug("raw matrix queried",
		log.EntityKey, entity,
		log.SamplesKey, t.NumRows(),
		log.FeaturesKey, t.NumCols(),
	)
	return t, nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
