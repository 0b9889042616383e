package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/boardtrack/apiserver/types"
	"github.com/rs/zerolog"
)

// ScanRepository handles scan persistence within department shards.
type ScanRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{
		db:  db,
		log: logging.WithComponent("store.scans"),
	}
}

// Insert stores a new scan in the shard. The (barcode, order_id) pair
// is enforced unique by the shard's index, so two scanners submitting
// the same board at once cannot both succeed.
func (r *ScanRepository) Insert(ctx context.Context, shard string, scan types.Scan) (types.Scan, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return types.Scan{}, err
	}

	if scan.Timestamp.IsZero() {
		scan.Timestamp = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.scans (barcode, scanned_at, status, notes, user_id, order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, schema)
	err = r.db.QueryRowContext(
		ctx,
		query,
		scan.Barcode,
		scan.Timestamp,
		scan.Status,
		scan.Notes,
		scan.UserID,
		scan.OrderID,
	).Scan(&scan.ID)
	if err != nil {
		if uniqueViolation(err, "idx_scans_barcode_order") {
			return types.Scan{}, ErrDuplicateBarcode
		}
		r.log.Error().Err(err).Str("shard", shard).Msg("scan insert failed")
		return types.Scan{}, storageErr("scans.insert", err)
	}

	return scan, nil
}

// List returns the shard's scans matching the filter, newest first,
// each annotated with its order number.
func (r *ScanRepository) List(ctx context.Context, shard string, filter types.ScanFilter) ([]types.Scan, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return nil, err
	}

	var conditions []string
	var params []any
	if filter.OrderID != 0 {
		params = append(params, filter.OrderID)
		conditions = append(conditions, "s.order_id = $"+strconv.Itoa(len(params)))
	}
	if filter.UserID != 0 {
		params = append(params, filter.UserID)
		conditions = append(conditions, "s.user_id = $"+strconv.Itoa(len(params)))
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.barcode, s.scanned_at, s.status, s.notes, s.user_id, s.order_id, o.order_number
		FROM %s.scans s
		JOIN %s.orders o ON s.order_id = o.id`, schema, schema)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.scanned_at DESC"

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		r.log.Error().Err(err).Str("shard", shard).Msg("scan list failed")
		return nil, storageErr("scans.list", err)
	}
	defer rows.Close()

	var scans []types.Scan
	for rows.Next() {
		var scan types.Scan
		if err := rows.Scan(
			&scan.ID,
			&scan.Barcode,
			&scan.Timestamp,
			&scan.Status,
			&scan.Notes,
			&scan.UserID,
			&scan.OrderID,
			&scan.OrderNumber,
		); err != nil {
			return nil, storageErr("scans.list", err)
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scans.list", err)
	}

	return scans, nil
}

// GetByID fetches one scan from the shard.
func (r *ScanRepository) GetByID(ctx context.Context, shard string, id int) (types.Scan, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return types.Scan{}, err
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.barcode, s.scanned_at, s.status, s.notes, s.user_id, s.order_id, o.order_number
		FROM %s.scans s
		JOIN %s.orders o ON s.order_id = o.id
		WHERE s.id = $1`, schema, schema)
	var scan types.Scan
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&scan.ID,
		&scan.Barcode,
		&scan.Timestamp,
		&scan.Status,
		&scan.Notes,
		&scan.UserID,
		&scan.OrderID,
		&scan.OrderNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Scan{}, ErrNotFound
		}
		return types.Scan{}, storageErr("scans.get", err)
	}
	return scan, nil
}

// Update applies the supplied fields to a scan. Nil fields are left
// untouched; with no fields the scan is returned unchanged.
func (r *ScanRepository) Update(ctx context.Context, shard string, id int, status *types.ScanStatus, notes *string) (types.Scan, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return types.Scan{}, err
	}

	var sets []string
	var params []any
	if status != nil {
		params = append(params, *status)
		sets = append(sets, "status = $"+strconv.Itoa(len(params)))
	}
	if notes != nil {
		params = append(params, *notes)
		sets = append(sets, "notes = $"+strconv.Itoa(len(params)))
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, shard, id)
	}

	params = append(params, id)
	query := fmt.Sprintf(
		`UPDATE %s.scans SET %s WHERE id = $%d`,
		schema, strings.Join(sets, ", "), len(params),
	)
	result, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		r.log.Error().Err(err).Str("shard", shard).Msg("scan update failed")
		return types.Scan{}, storageErr("scans.update", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Scan{}, storageErr("scans.update", err)
	}
	if affected == 0 {
		return types.Scan{}, ErrNotFound
	}

	return r.GetByID(ctx, shard, id)
}

// Delete removes one scan from the shard.
func (r *ScanRepository) Delete(ctx context.Context, shard string, id int) error {
	schema, err := SchemaName(shard)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s.scans WHERE id = $1`, schema)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.log.Error().Err(err).Str("shard", shard).Msg("scan delete failed")
		return storageErr("scans.delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("scans.delete", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count reports how many scans the shard holds.
func (r *ScanRepository) Count(ctx context.Context, shard string) (int, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s.scans`, schema)
	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, storageErr("scans.count", err)
	}
	return count, nil
}

// CountByUser reports how many scans in the shard were recorded by the
// given user.
func (r *ScanRepository) CountByUser(ctx context.Context, shard string, userID int) (int, error) {
	schema, err := SchemaName(shard)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s.scans WHERE user_id = $1`, schema)
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, storageErr("scans.count_by_user", err)
	}
	return count, nil
}
