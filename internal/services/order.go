package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
	"golang.org/x/sync/errgroup"
)

// OrderStore defines persistence operations for orders within a shard.
type OrderStore interface {
	Insert(ctx context.Context, shard string, order types.Order) (types.Order, error)
	List(ctx context.Context, shard string) ([]types.Order, error)
	GetByID(ctx context.Context, shard string, id int) (types.Order, error)
	GetByNumber(ctx context.Context, shard, orderNumber string) (types.Order, error)
	DeleteWithScans(ctx context.Context, shard string, orderID int) error
	CountByUser(ctx context.Context, shard string, userID int) (int, error)
}

// OrderService encapsulates order use-cases: creation, merged listing
// across the caller's visible shards, and admin-only deletion.
type OrderService struct {
	orders OrderStore
	users  UserStore
	router *QueryRouter
	shards ShardStore
}

func NewOrderService(orders OrderStore, users UserStore, router *QueryRouter, shards ShardStore) *OrderService {
	return &OrderService{
		orders: orders,
		users:  users,
		router: router,
		shards: shards,
	}
}

// Create stores a new order in the caller's write shard. Requires the
// Admin or Manager role and a resolvable shard; the order number must
// be unused within that shard.
func (s *OrderService) Create(ctx context.Context, sess types.Session, orderNumber, description string) (types.Order, error) {
	if !sess.CanManageOrders() {
		return types.Order{}, ErrForbidden
	}

	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return types.Order{}, fmt.Errorf("order number is required")
	}

	shard, err := s.router.WriteShardForOrder(sess)
	if err != nil {
		return types.Order{}, err
	}
	if err := s.shards.EnsureShard(ctx, shard); err != nil {
		return types.Order{}, err
	}

	order, err := s.orders.Insert(ctx, shard, types.Order{
		OrderNumber: orderNumber,
		Description: description,
		CreatedBy:   sess.UserID,
	})
	if err != nil {
		return types.Order{}, err
	}

	order.CreatorUsername = sess.Username
	order.DepartmentName = shard
	return order, nil
}

// List returns the orders visible to the session, merged across shards
// and sorted by creation time descending, annotated with creator
// username and owning department. A single failing shard fails the
// whole read; no partial views.
func (s *OrderService) List(ctx context.Context, sess types.Session) ([]types.Order, error) {
	shards, err := s.router.ReadShards(ctx, sess)
	if err != nil {
		return nil, err
	}

	merged, err := s.gatherOrders(ctx, shards)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	if err := s.annotateCreators(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// GetByNumber finds an order by its number within the caller's visible
// shards. Shards are searched in read order; per-shard uniqueness means
// at most one match per shard, and the first hit wins.
func (s *OrderService) GetByNumber(ctx context.Context, sess types.Session, orderNumber string) (types.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return types.Order{}, fmt.Errorf("order number is required")
	}

	shards, err := s.router.ReadShards(ctx, sess)
	if err != nil {
		return types.Order{}, err
	}

	for _, shard := range shards {
		order, err := s.orders.GetByNumber(ctx, shard, orderNumber)
		if err == nil {
			order.DepartmentName = shard
			orders := []types.Order{order}
			if err := s.annotateCreators(ctx, orders); err != nil {
				return types.Order{}, err
			}
			return orders[0], nil
		}
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		return types.Order{}, err
	}
	return types.Order{}, store.ErrNotFound
}

// Delete removes an order and cascades to its scans. Admin only. The
// shard is not derivable from the id, so every shard is searched.
func (s *OrderService) Delete(ctx context.Context, sess types.Session, orderID int) error {
	if !sess.IsAdmin() {
		return ErrForbidden
	}

	shards, err := s.router.AllShards(ctx)
	if err != nil {
		return err
	}

	for _, shard := range shards {
		err := s.orders.DeleteWithScans(ctx, shard, orderID)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		return err
	}
	return store.ErrNotFound
}

// gatherOrders reads every shard concurrently and merges the results,
// tagging each order with its shard's department name.
func (s *OrderService) gatherOrders(ctx context.Context, shards []string) ([]types.Order, error) {
	var mu sync.Mutex
	var merged []types.Order

	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		g.Go(func() error {
			orders, err := s.orders.List(gctx, shard)
			if err != nil {
				return err
			}
			for i := range orders {
				orders[i].DepartmentName = shard
			}
			mu.Lock()
			merged = append(merged, orders...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *OrderService) annotateCreators(ctx context.Context, orders []types.Order) error {
	usernames := make(map[int]string)
	for i := range orders {
		id := orders[i].CreatedBy
		name, ok := usernames[id]
		if !ok {
			user, err := s.users.GetByID(ctx, id)
			switch {
			case err == nil:
				name = user.Username
			case errors.Is(err, store.ErrNotFound):
				name = "Unknown"
			default:
				return err
			}
			usernames[id] = name
		}
		orders[i].CreatorUsername = name
	}
	return nil
}
