package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id int, update store.UserUpdate) (types.User, error)
	Delete(ctx context.Context, id int) error
	CountByDepartment(ctx context.Context, departmentID int) (int, error)
}

// IdentityService owns users, roles and departments, and verifies
// credentials. Only admins may manage identity records.
type IdentityService struct {
	users       UserStore
	departments DepartmentStore
	orders      OrderStore
	scans       ScanStore
	router      *QueryRouter
	shards      ShardStore
}

func NewIdentityService(
	users UserStore,
	departments DepartmentStore,
	orders OrderStore,
	scans ScanStore,
	router *QueryRouter,
	shards ShardStore,
) *IdentityService {
	return &IdentityService{
		users:       users,
		departments: departments,
		orders:      orders,
		scans:       scans,
		router:      router,
		shards:      shards,
	}
}

// Authenticate verifies a username/password pair and returns the
// session context every other operation requires.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (types.Session, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Session{}, ErrAuthenticationFailed
		}
		return types.Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.Session{}, ErrAuthenticationFailed
	}

	return sessionFromUser(user), nil
}

// SessionFor rebuilds a session from a user id. Transport layers use it
// to turn a verified token subject back into the explicit session value.
func (s *IdentityService) SessionFor(ctx context.Context, userID int) (types.Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.Session{}, err
	}
	return sessionFromUser(user), nil
}

// CreateUser provisions a new account. Admin only.
func (s *IdentityService) CreateUser(ctx context.Context, sess types.Session, username, password string, role types.Role, departmentID *int) (types.User, error) {
	if !sess.IsAdmin() {
		return types.User{}, ErrForbidden
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, fmt.Errorf("username and password are required")
	}
	if !role.Valid() {
		return types.User{}, fmt.Errorf("unknown role %q", role)
	}
	if departmentID != nil {
		if _, err := s.departments.GetByID(ctx, *departmentID); err != nil {
			return types.User{}, err
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.users.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         role,
		DepartmentID: departmentID,
	})
}

// ListUsers returns every account. Admin only.
func (s *IdentityService) ListUsers(ctx context.Context, sess types.Session) ([]types.User, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.users.List(ctx)
}

// UpdateUser applies a partial role/department update. Admin only.
func (s *IdentityService) UpdateUser(ctx context.Context, sess types.Session, userID int, update store.UserUpdate) (types.User, error) {
	if !sess.IsAdmin() {
		return types.User{}, ErrForbidden
	}

	if update.Role != nil && !update.Role.Valid() {
		return types.User{}, fmt.Errorf("unknown role %q", *update.Role)
	}
	if update.SetDepartment && update.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *update.DepartmentID); err != nil {
			return types.User{}, err
		}
	}

	return s.users.Update(ctx, userID, update)
}

// DeleteUser removes an account. Admin only; self-deletion is rejected,
// and so is deleting a user who still owns orders or scans in any shard.
func (s *IdentityService) DeleteUser(ctx context.Context, sess types.Session, userID int) error {
	if !sess.IsAdmin() {
		return ErrForbidden
	}
	if userID == sess.UserID {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}

	owns, err := s.userOwnsRecords(ctx, userID)
	if err != nil {
		return err
	}
	if owns {
		return fmt.Errorf("%w: user still owns orders or scans", store.ErrReferentialIntegrity)
	}

	return s.users.Delete(ctx, userID)
}

// CreateDepartment registers a department and eagerly provisions its
// shard. Admin only.
func (s *IdentityService) CreateDepartment(ctx context.Context, sess types.Session, name string) (types.Department, error) {
	if !sess.IsAdmin() {
		return types.Department{}, ErrForbidden
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return types.Department{}, fmt.Errorf("department name is required")
	}

	dept, err := s.departments.Create(ctx, name)
	if err != nil {
		return types.Department{}, err
	}

	if err := s.shards.EnsureShard(ctx, dept.Name); err != nil {
		return types.Department{}, err
	}
	return dept, nil
}

// ListDepartments returns every department. Any authenticated caller.
func (s *IdentityService) ListDepartments(ctx context.Context, sess types.Session) ([]types.Department, error) {
	return s.departments.List(ctx)
}

// DeleteDepartment removes a department. Admin only; rejected while any
// user is assigned to it or its shard still holds scans. The shard
// schema itself is left in place, matching how order history outlives
// the department record.
func (s *IdentityService) DeleteDepartment(ctx context.Context, sess types.Session, departmentID int) error {
	if !sess.IsAdmin() {
		return ErrForbidden
	}

	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		return err
	}

	assigned, err := s.users.CountByDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return fmt.Errorf("%w: department %q is assigned to users", store.ErrReferentialIntegrity, dept.Name)
	}

	existing, err := s.shards.Existing(ctx, []string{dept.Name})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		scanCount, err := s.scans.Count(ctx, dept.Name)
		if err != nil {
			return err
		}
		if scanCount > 0 {
			return fmt.Errorf("%w: department %q still has scans", store.ErrReferentialIntegrity, dept.Name)
		}
	}

	return s.departments.Delete(ctx, departmentID)
}

func (s *IdentityService) userOwnsRecords(ctx context.Context, userID int) (bool, error) {
	shards, err := s.router.AllShards(ctx)
	if err != nil {
		return false, err
	}

	for _, shard := range shards {
		orderCount, err := s.orders.CountByUser(ctx, shard, userID)
		if err != nil {
			return false, err
		}
		if orderCount > 0 {
			return true, nil
		}

		scanCount, err := s.scans.CountByUser(ctx, shard, userID)
		if err != nil {
			return false, err
		}
		if scanCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

func sessionFromUser(user types.User) types.Session {
	return types.Session{
		UserID:         user.ID,
		Username:       user.Username,
		Role:           user.Role,
		DepartmentID:   user.DepartmentID,
		DepartmentName: user.DepartmentName,
	}
}
