// Package codegen generates DDL for the tables a registry describes, so a
// database can be prepared for the SQL store.
package codegen

import (
	"fmt"

	"github.com/conduit-lang/flatquery/internal/orm/schema"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
)

// TypeMapper maps primitive property types to column types of one dialect
type TypeMapper struct {
	dialect string
}

// NewTypeMapper creates a TypeMapper for the named dialect
func NewTypeMapper(dialect string) *TypeMapper {
	return &TypeMapper{dialect: dialect}
}

// MapType returns the column type for t
func (tm *TypeMapper) MapType(t schema.PrimitiveType) (string, error) {
	switch tm.dialect {
	case sqlstore.DialectPostgres:
		return mapPostgres(t)
	case sqlstore.DialectSQLite:
		return mapSQLite(t)
	case sqlstore.DialectDuckDB:
		return mapDuckDB(t)
	default:
		return "", fmt.Errorf("unsupported dialect: %s", tm.dialect)
	}
}

// MapNullability returns the NULL/NOT NULL constraint for a property
func (tm *TypeMapper) MapNullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

func mapPostgres(t schema.PrimitiveType) (string, error) {
	switch t {
	case schema.TypeString:
		return "VARCHAR(255)", nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeInt:
		return "INTEGER", nil
	case schema.TypeBigInt:
		return "BIGINT", nil
	case schema.TypeFloat:
		return "DOUBLE PRECISION", nil
	case schema.TypeDecimal:
		return "NUMERIC", nil
	case schema.TypeBool:
		return "BOOLEAN", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP WITH TIME ZONE", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeUUID:
		return "UUID", nil
	default:
		return "", fmt.Errorf("unsupported type: %s", t)
	}
}

// SQLite only has storage classes; the declared types below are the ones
// go-sqlite3 uses to convert values on scan.
func mapSQLite(t schema.PrimitiveType) (string, error) {
	switch t {
	case schema.TypeString, schema.TypeText, schema.TypeTime, schema.TypeUUID:
		return "TEXT", nil
	case schema.TypeInt, schema.TypeBigInt:
		return "INTEGER", nil
	case schema.TypeFloat:
		return "REAL", nil
	case schema.TypeDecimal:
		return "NUMERIC", nil
	case schema.TypeBool:
		return "BOOLEAN", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP", nil
	case schema.TypeDate:
		return "DATE", nil
	default:
		return "", fmt.Errorf("unsupported type: %s", t)
	}
}

func mapDuckDB(t schema.PrimitiveType) (string, error) {
	switch t {
	case schema.TypeString, schema.TypeText:
		return "VARCHAR", nil
	case schema.TypeInt:
		return "INTEGER", nil
	case schema.TypeBigInt:
		return "BIGINT", nil
	case schema.TypeFloat:
		return "DOUBLE", nil
	case schema.TypeDecimal:
		return "DECIMAL(18,4)", nil
	case schema.TypeBool:
		return "BOOLEAN", nil
	case schema.TypeTimestamp:
		return "TIMESTAMPTZ", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeUUID:
		return "UUID", nil
	default:
		return "", fmt.Errorf("unsupported type: %s", t)
	}
}
