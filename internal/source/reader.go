package source

import (
	"context"
	"database/sql"
	"fmt"

	"auroraetl/internal/connection"
	"auroraetl/internal/mask"
)

const (
	DefaultHashField      = "id"
	DefaultHashPartitions = 7
)

type Column struct {
	Name         string
	DatabaseType string
}

// PartitionOptions describes how the table is split for parallel reads.
// After, when set, restricts the read to rows whose hash field is greater
// than the bookmarked value.
type PartitionOptions struct {
	HashField  string
	Partitions int
	After      *int64
}

func (o PartitionOptions) withDefaults() PartitionOptions {
	if o.HashField == "" {
		o.HashField = DefaultHashField
	}
	if o.Partitions <= 0 {
		o.Partitions = DefaultHashPartitions
	}
	return o
}

type Reader struct {
	db      *sql.DB
	dialect Dialect
}

func NewReader(db *sql.DB, d Dialect) *Reader {
	return &Reader{db: db, dialect: d}
}

// Open connects to {conf.URL}/{database} with the driver for conf.Vendor.
func Open(ctx context.Context, conf *connection.JDBCConf, database string) (*Reader, error) {
	d, err := DialectFor(conf.Vendor)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.Driver, d.DSN(conf, database))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.WithDatabase(database), err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", conf.WithDatabase(database), err)
	}
	return NewReader(db, d), nil
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// Columns returns the table's columns in select order without reading rows.
func (r *Reader) Columns(ctx context.Context, table string) ([]Column, error) {
	q := fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", r.dialect.QuoteIdent(table))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types %s: %w", table, err)
	}
	cols := make([]Column, 0, len(types))
	for _, ct := range types {
		cols = append(cols, Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()})
	}
	return cols, rows.Err()
}

// PartitionQuery builds the SELECT for one hash partition and its arguments.
func (r *Reader) PartitionQuery(table string, opts PartitionOptions, partition int) (string, []any) {
	opts = opts.withDefaults()
	field := r.dialect.QuoteIdent(opts.HashField)

	q := fmt.Sprintf("SELECT * FROM %s WHERE MOD(%s, %d) = %s",
		r.dialect.QuoteIdent(table), field, opts.Partitions, r.dialect.param(1))
	args := []any{partition}
	if opts.After != nil {
		q += fmt.Sprintf(" AND %s > %s", field, r.dialect.param(2))
		args = append(args, *opts.After)
	}
	q += fmt.Sprintf(" ORDER BY %s", field)
	return q, args
}

// ReadPartition loads every row of one hash partition.
func (r *Reader) ReadPartition(ctx context.Context, table string, opts PartitionOptions, partition int) ([]mask.Record, error) {
	q, args := r.PartitionQuery(table, opts, partition)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s partition %d: %w", table, partition, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", table, err)
	}

	var out []mask.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s partition %d: %w", table, partition, err)
		}

		rec := make(mask.Record, len(columns))
		for i, name := range columns {
			// drivers hand TEXT/VARCHAR back as []byte
			if b, ok := values[i].([]byte); ok {
				rec[name] = string(b)
			} else {
				rec[name] = values[i]
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s partition %d: %w", table, partition, err)
	}
	return out, nil
}
