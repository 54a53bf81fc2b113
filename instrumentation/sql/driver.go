package sql

import (
	"database/sql"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Open opens a database whose statements produce client spans carrying the
// given database system attribute (e.g. semconv.DBSystemSqlite).
func Open(driverName, dataSourceName string, system attribute.KeyValue, tp trace.TracerProvider) (*sql.DB, error) {
	db, err := otelsql.Open(driverName, dataSourceName,
		otelsql.WithAttributes(system),
		otelsql.WithTracerProvider(tp),
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
