package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/boardtrack/apiserver/types"
	"github.com/rs/zerolog"
)

// DepartmentRepository handles persistence for departments in the
// identity partition.
type DepartmentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewDepartmentRepository(db *sql.DB) *DepartmentRepository {
	return &DepartmentRepository{
		db:  db,
		log: logging.WithComponent("store.departments"),
	}
}

// List returns every department, ordered by name.
func (r *DepartmentRepository) List(ctx context.Context) ([]types.Department, error) {
	const query = `SELECT id, name FROM departments ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.log.Error().Err(err).Msg("department list failed")
		return nil, storageErr("departments.list", err)
	}
	defer rows.Close()

	var departments []types.Department
	for rows.Next() {
		var dept types.Department
		if err := rows.Scan(&dept.ID, &dept.Name); err != nil {
			return nil, storageErr("departments.list", err)
		}
		departments = append(departments, dept)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("departments.list", err)
	}
	return departments, nil
}

func (r *DepartmentRepository) GetByID(ctx context.Context, id int) (types.Department, error) {
	const query = `SELECT id, name FROM departments WHERE id = $1`
	var dept types.Department
	err := r.db.QueryRowContext(ctx, query, id).Scan(&dept.ID, &dept.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Department{}, ErrNotFound
		}
		return types.Department{}, storageErr("departments.get", err)
	}
	return dept, nil
}

// Create stores a new department. Names are unique.
func (r *DepartmentRepository) Create(ctx context.Context, name string) (types.Department, error) {
	const query = `INSERT INTO departments (name) VALUES ($1) RETURNING id`
	dept := types.Department{Name: name}
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&dept.ID); err != nil {
		if uniqueViolation(err, "") {
			return types.Department{}, ErrDuplicateDepartment
		}
		r.log.Error().Err(err).Str("department", name).Msg("department insert failed")
		return types.Department{}, storageErr("departments.create", err)
	}
	return dept, nil
}

func (r *DepartmentRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM departments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return storageErr("departments.delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("departments.delete", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
