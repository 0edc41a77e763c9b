package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

const visitColumns = `v.id, v.link_id, COALESCE(v.referer, ''), COALESCE(v.user_agent, ''), COALESCE(v.remote_addr, ''), v.created_at,
	l.id, l.country_code, l.country_name, l.region_name, l.city_name, l.latitude, l.longitude, l.timezone`

const visitFrom = `FROM visits v LEFT JOIN visit_locations l ON l.id = v.visit_location_id`

func (r *SQLiteRepository) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Insert Visit Record, location is attached later by the locator
	queryVisit := `INSERT INTO visits (id, link_id, referer, user_agent, remote_addr, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, queryVisit,
		visit.ID, visit.LinkID, visit.Visitor.Referer, visit.Visitor.UserAgent, visit.Visitor.RemoteAddr,
		visit.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return err
	}

	// 2. Increment Link Clicks Counter (Atomic)
	queryCount := `UPDATE links SET clicks = clicks + 1 WHERE id = ?`
	_, err = tx.ExecContext(ctx, queryCount, visit.LinkID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) FindVisit(ctx context.Context, id string) (*domain.Visit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+visitColumns+` `+visitFrom+` WHERE v.id = ?`, id)

	visit, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// Flush persists the location currently bound to the visit. Unknown locations
// are never stored, so those visits are picked up again later.
func (r *SQLiteRepository) Flush(ctx context.Context, visit *domain.Visit) error {
	if visit.Location == nil || visit.Location.IsUnknown() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	loc := visit.Location
	if loc.ID == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO visit_locations (country_code, country_name, region_name, city_name, latitude, longitude, timezone)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			loc.CountryCode, loc.CountryName, loc.RegionName, loc.CityName, loc.Latitude, loc.Longitude, loc.Timezone,
		)
		if err != nil {
			return fmt.Errorf("inserting visit location: %w", err)
		}
		if loc.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE visits SET visit_location_id = ? WHERE id = ?`, loc.ID, visit.ID); err != nil {
		return fmt.Errorf("updating visit: %w", err)
	}

	return tx.Commit()
}

func (r *SQLiteRepository) FindUnlocatedVisits(ctx context.Context, limit int) ([]*domain.Visit, error) {
	query := `SELECT ` + visitColumns + ` ` + visitFrom + ` WHERE v.visit_location_id IS NULL ORDER BY v.created_at ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []*domain.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (r *SQLiteRepository) ListVisits(ctx context.Context, linkID int64, limit, offset int) ([]domain.Visit, error) {
	query := `SELECT ` + visitColumns + ` ` + visitFrom + ` WHERE v.link_id = ? ORDER BY v.created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, linkID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := []domain.Visit{}
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVisit(s scanner) (*domain.Visit, error) {
	var (
		v       domain.Visit
		locID   sql.NullInt64
		code    sql.NullString
		country sql.NullString
		region  sql.NullString
		city    sql.NullString
		lat     sql.NullFloat64
		lng     sql.NullFloat64
		tz      sql.NullString
	)

	err := s.Scan(
		&v.ID, &v.LinkID, &v.Visitor.Referer, &v.Visitor.UserAgent, &v.Visitor.RemoteAddr, &v.CreatedAt,
		&locID, &code, &country, &region, &city, &lat, &lng, &tz,
	)
	if err != nil {
		return nil, err
	}

	if locID.Valid {
		v.Location = &domain.VisitLocation{
			ID: locID.Int64,
			Location: domain.Location{
				CountryCode: code.String,
				CountryName: country.String,
				RegionName:  region.String,
				CityName:    city.String,
				Latitude:    lat.Float64,
				Longitude:   lng.Float64,
				Timezone:    tz.String,
			},
		}
	}

	return &v, nil
}

var _ ports.VisitRepository = (*SQLiteRepository)(nil)
