// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

// This file holds transaction handling and the small string-based
// SQL builders the counter queries use.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// serializationFailure is the SQLSTATE PostgreSQL reports when a
// repeatable-read transaction collides with another one.
const serializationFailure = "40001"

// maxTxAttempts bounds how many times withTx reruns a transaction
// that hit a serialization failure.
const maxTxAttempts = 16

func isSerializationFailure(err error) bool {
	pqerr, ok := err.(*pq.Error)
	return ok && pqerr.Code == serializationFailure
}

// withTx runs f in a repeatable-read transaction, committing if f
// returns nil and rolling back otherwise.  A serialization failure
// from f or from the commit reruns the whole transaction.
func withTx(ctx context.Context, db *sql.DB, readOnly bool, f func(*sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = runTx(ctx, db, readOnly, f)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, db *sql.DB, readOnly bool, f func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  readOnly,
	})
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err = f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return rbErr
		}
		return err
	}
	return tx.Commit()
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// buildSelect constructs a SELECT statement; all of the conditions
// are ANDed together.
func buildSelect(outputs, tables, conditions []string) string {
	return "SELECT " + strings.Join(outputs, ", ") +
		" FROM " + strings.Join(tables, ", ") +
		where(conditions)
}

// buildUpdate constructs an UPDATE statement; all of the conditions
// are ANDed together.
func buildUpdate(table string, changes, conditions []string) string {
	query := "UPDATE " + table
	if len(changes) > 0 {
		query += " SET " + strings.Join(changes, ", ")
	}
	return query + where(conditions)
}

// queryParams accumulates positional query parameters.
type queryParams []interface{}

// Param appends a parameter and returns its placeholder, $1, $2, ...
func (qp *queryParams) Param(param interface{}) string {
	*qp = append(*qp, param)
	return fmt.Sprintf("$%d", len(*qp))
}

// fieldList pairs column names with parameter placeholders for an
// INSERT or UPDATE.
type fieldList struct {
	Names        []string
	Placeholders []string
}

// Add adds a column and its value.
func (f *fieldList) Add(qp *queryParams, field string, value interface{}) {
	f.Names = append(f.Names, field)
	f.Placeholders = append(f.Placeholders, qp.Param(value))
}

// InsertStatement produces a complete INSERT statement.
func (f fieldList) InsertStatement(table string) string {
	return "INSERT INTO " + table +
		"(" + strings.Join(f.Names, ", ") + ")" +
		" VALUES(" + strings.Join(f.Placeholders, ", ") + ")"
}

// UpdateChanges returns "field=$n" fragments for the SET clause of an
// UPDATE statement.
func (f fieldList) UpdateChanges() []string {
	changes := make([]string, len(f.Names))
	for i, name := range f.Names {
		changes[i] = name + "=" + f.Placeholders[i]
	}
	return changes
}
