package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/boardtrack/apiserver/types"
	"github.com/rs/zerolog"
)

// UserRepository handles persistence for users in the identity
// partition. Roles live in their own table; the repository resolves
// role names to ids on write and joins them back on read.
type UserRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{
		db:  db,
		log: logging.WithComponent("store.users"),
	}
}

// UserUpdate carries the optional fields of a user update. Nil fields
// are left untouched; SetDepartment with a nil DepartmentID clears the
// department assignment.
type UserUpdate struct {
	Role          *types.Role
	SetDepartment bool
	DepartmentID  *int
}

const userSelect = `
	SELECT u.id, u.username, u.password_hash, r.name, u.department_id, COALESCE(d.name, '')
	FROM users u
	JOIN roles r ON u.role_id = r.id
	LEFT JOIN departments d ON u.department_id = d.id`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.DepartmentID,
		&user.DepartmentName,
	)
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, storageErr("users.get", err)
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.username = $1`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, storageErr("users.get_by_username", err)
	}
	return user, nil
}

// List returns every user, ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` ORDER BY u.username`)
	if err != nil {
		r.log.Error().Err(err).Msg("user list failed")
		return nil, storageErr("users.list", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storageErr("users.list", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("users.list", err)
	}
	return users, nil
}

// Create stores a new user. The username must be unique and the role
// must be one of the seeded roles.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	roleID, err := r.roleID(ctx, user.Role)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		INSERT INTO users (username, password_hash, role_id, department_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err = r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.PasswordHash,
		roleID,
		user.DepartmentID,
	).Scan(&user.ID)
	if err != nil {
		if uniqueViolation(err, "") {
			return types.User{}, ErrDuplicateUsername
		}
		r.log.Error().Err(err).Str("username", user.Username).Msg("user insert failed")
		return types.User{}, storageErr("users.create", err)
	}

	return r.GetByID(ctx, user.ID)
}

// Update applies a partial role/department update to a user.
func (r *UserRepository) Update(ctx context.Context, id int, update UserUpdate) (types.User, error) {
	var sets []string
	var params []any

	if update.Role != nil {
		roleID, err := r.roleID(ctx, *update.Role)
		if err != nil {
			return types.User{}, err
		}
		params = append(params, roleID)
		sets = append(sets, "role_id = $"+strconv.Itoa(len(params)))
	}
	if update.SetDepartment {
		params = append(params, update.DepartmentID)
		sets = append(sets, "department_id = $"+strconv.Itoa(len(params)))
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	params = append(params, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d`,
		strings.Join(sets, ", "), len(params),
	)
	result, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		r.log.Error().Err(err).Int("user_id", id).Msg("user update failed")
		return types.User{}, storageErr("users.update", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, storageErr("users.update", err)
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return storageErr("users.delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("users.delete", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByDepartment reports how many users are assigned to a
// department. Used to block department deletion while referenced.
func (r *UserRepository) CountByDepartment(ctx context.Context, departmentID int) (int, error) {
	const query = `SELECT COUNT(1) FROM users WHERE department_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, departmentID).Scan(&count); err != nil {
		return 0, storageErr("users.count_by_department", err)
	}
	return count, nil
}

func (r *UserRepository) roleID(ctx context.Context, role types.Role) (int, error) {
	const query = `SELECT id FROM roles WHERE name = $1`
	var id int
	err := r.db.QueryRowContext(ctx, query, string(role)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("unknown role %q", role)
		}
		return 0, storageErr("roles.get", err)
	}
	return id, nil
}
