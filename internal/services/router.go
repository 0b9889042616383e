package services

import (
	"context"

	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
)

// DepartmentStore defines persistence operations for departments.
type DepartmentStore interface {
	List(ctx context.Context) ([]types.Department, error)
	GetByID(ctx context.Context, id int) (types.Department, error)
	Create(ctx context.Context, name string) (types.Department, error)
	Delete(ctx context.Context, id int) error
}

// ShardStore manages the lifecycle of department shards.
type ShardStore interface {
	EnsureShard(ctx context.Context, department string) error
	Existing(ctx context.Context, departments []string) ([]string, error)
}

// QueryRouter resolves which shards a session may read and which single
// shard a write targets. All visibility policy lives here; the
// repositories themselves never look at the session.
type QueryRouter struct {
	departments DepartmentStore
	shards      ShardStore
}

func NewQueryRouter(departments DepartmentStore, shards ShardStore) *QueryRouter {
	return &QueryRouter{departments: departments, shards: shards}
}

// ReadShards returns the shards the session may read, filtered to those
// that physically exist. Admins see every department shard plus the
// Admin sentinel; everyone else sees exactly their own department, or
// nothing if they have none.
func (q *QueryRouter) ReadShards(ctx context.Context, sess types.Session) ([]string, error) {
	if sess.IsAdmin() {
		candidates, err := q.allDepartmentNames(ctx)
		if err != nil {
			return nil, err
		}
		return q.shards.Existing(ctx, candidates)
	}

	if !sess.HasDepartment() {
		return nil, nil
	}
	return q.shards.Existing(ctx, []string{sess.DepartmentName})
}

// ReadShardsForDepartment narrows an admin's read set to one department.
// Non-admin sessions keep their usual read set; the filter never widens
// visibility.
func (q *QueryRouter) ReadShardsForDepartment(ctx context.Context, sess types.Session, departmentID int) ([]string, error) {
	if !sess.IsAdmin() {
		return q.ReadShards(ctx, sess)
	}

	dept, err := q.departments.GetByID(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	return q.shards.Existing(ctx, []string{dept.Name})
}

// AllShards returns every existing shard, department shards and the
// Admin sentinel alike. Used for admin-only cross-shard searches.
func (q *QueryRouter) AllShards(ctx context.Context) ([]string, error) {
	candidates, err := q.allDepartmentNames(ctx)
	if err != nil {
		return nil, err
	}
	return q.shards.Existing(ctx, candidates)
}

// WriteShardForOrder resolves the shard a new order is created in: the
// acting user's department, or the Admin sentinel for an admin with no
// department.
func (q *QueryRouter) WriteShardForOrder(sess types.Session) (string, error) {
	if sess.HasDepartment() {
		return sess.DepartmentName, nil
	}
	if sess.IsAdmin() {
		return store.AdminShard, nil
	}
	return "", ErrDepartmentRequired
}

// WriteShardForScan resolves the shard a scan is recorded in: always
// the acting user's own department, regardless of role.
func (q *QueryRouter) WriteShardForScan(sess types.Session) (string, error) {
	if !sess.HasDepartment() {
		return "", ErrDepartmentRequired
	}
	return sess.DepartmentName, nil
}

func (q *QueryRouter) allDepartmentNames(ctx context.Context) ([]string, error) {
	departments, err := q.departments.List(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(departments)+1)
	for _, dept := range departments {
		names = append(names, dept.Name)
	}
	return append(names, store.AdminShard), nil
}
