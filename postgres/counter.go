// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/diffeo/go-counter/counter"
)

func (s *pgStore) Get(ctx context.Context, id string) (rec counter.Record, err error) {
	query := buildSelect(counterColumns, []string{counterTable}, []string{isCounter})
	err = withTx(ctx, s.db, true, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, query, id)
		return row.Scan(&rec.ID, &rec.Value, &rec.CreatedAt, &rec.LastUpdated, &rec.LastUser, &rec.Version)
	})
	if err == sql.ErrNoRows {
		return counter.Record{}, counter.ErrNoSuchCounter{ID: id}
	}
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "fetching counter %q", id)
	}
	return rec, nil
}

func (s *pgStore) Put(ctx context.Context, rec counter.Record) (counter.Record, error) {
	stored := rec
	stored.Version++

	params := queryParams{}
	fields := fieldList{}
	var query string
	if rec.Version == 0 {
		fields.Add(&params, counterID, stored.ID)
		fields.Add(&params, counterValue, stored.Value)
		fields.Add(&params, counterCreatedAt, stored.CreatedAt)
		fields.Add(&params, counterLastUpdated, stored.LastUpdated)
		fields.Add(&params, counterLastUser, stored.LastUser)
		fields.Add(&params, counterVersion, stored.Version)
		query = fields.InsertStatement(counterTable) + " ON CONFLICT (" + counterID + ") DO NOTHING"
	} else {
		fields.Add(&params, counterValue, stored.Value)
		fields.Add(&params, counterLastUpdated, stored.LastUpdated)
		fields.Add(&params, counterLastUser, stored.LastUser)
		fields.Add(&params, counterVersion, stored.Version)
		query = buildUpdate(counterTable, fields.UpdateChanges(), []string{
			counterID + "=" + params.Param(rec.ID),
			counterVersion + "=" + params.Param(rec.Version),
		})
	}

	err := withTx(ctx, s.db, false, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, params...)
		if err != nil {
			return err
		}
		count, err := result.RowsAffected()
		if err == nil && count == 0 {
			err = counter.ErrConflict
		}
		return err
	})
	if err == counter.ErrConflict {
		return counter.Record{}, err
	}
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "writing counter %q", rec.ID)
	}
	return stored, nil
}

func (s *pgStore) Delete(ctx context.Context, id string) error {
	err := withTx(ctx, s.db, false, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+counterTable+" WHERE "+isCounter, id)
		if err != nil {
			return err
		}
		count, err := result.RowsAffected()
		if err == nil && count == 0 {
			err = counter.ErrNoSuchCounter{ID: id}
		}
		return err
	})
	if _, missing := err.(counter.ErrNoSuchCounter); missing {
		return err
	}
	return errors.Wrapf(err, "deleting counter %q", id)
}
