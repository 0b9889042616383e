package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ScanStore defines persistence operations for scans within a shard.
type ScanStore interface {
	Insert(ctx context.Context, shard string, scan types.Scan) (types.Scan, error)
	List(ctx context.Context, shard string, filter types.ScanFilter) ([]types.Scan, error)
	GetByID(ctx context.Context, shard string, id int) (types.Scan, error)
	Update(ctx context.Context, shard string, id int, status *types.ScanStatus, notes *string) (types.Scan, error)
	Delete(ctx context.Context, shard string, id int) error
	Count(ctx context.Context, shard string) (int, error)
	CountByUser(ctx context.Context, shard string, userID int) (int, error)
}

// EventPublisher delivers scan events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ScanEvent is the payload published after every recorded scan.
type ScanEvent struct {
	ScanID      int              `json:"scan_id"`
	Barcode     string           `json:"barcode"`
	Status      types.ScanStatus `json:"status"`
	OrderID     int              `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	Department  string           `json:"department"`
	Username    string           `json:"username"`
	Timestamp   time.Time        `json:"timestamp"`
}

// ScanService validates and persists scans. Recording always targets
// the acting user's own department shard; the order must live in that
// same shard.
type ScanService struct {
	scans     ScanStore
	orders    OrderStore
	users     UserStore
	router    *QueryRouter
	publisher EventPublisher
	channel   string
	log       zerolog.Logger
}

func NewScanService(scans ScanStore, orders OrderStore, users UserStore, router *QueryRouter) *ScanService {
	return &ScanService{
		scans:  scans,
		orders: orders,
		users:  users,
		router: router,
		log:    logging.WithComponent("scans"),
	}
}

// WithPublisher enables scan-event publication on the named channel.
func (s *ScanService) WithPublisher(publisher EventPublisher, channel string) *ScanService {
	s.publisher = publisher
	s.channel = channel
	return s
}

// Record validates and persists one scan. The caller must belong to a
// department; the order must exist in that department's shard, and the
// (barcode, order) pair must not have been recorded before.
func (s *ScanService) Record(ctx context.Context, sess types.Session, barcode string, status types.ScanStatus, orderID int, notes string) (types.Scan, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return types.Scan{}, errors.New("barcode is required")
	}
	if !status.Valid() {
		return types.Scan{}, ErrInvalidStatus
	}

	shard, err := s.router.WriteShardForScan(sess)
	if err != nil {
		return types.Scan{}, err
	}

	// Order lookup is scoped to the scanning user's own shard. An order
	// living in another department's shard is not scannable from here.
	order, err := s.orders.GetByID(ctx, shard, orderID)
	if err != nil {
		return types.Scan{}, err
	}

	scan, err := s.scans.Insert(ctx, shard, types.Scan{
		Barcode: barcode,
		Status:  status,
		Notes:   notes,
		UserID:  sess.UserID,
		OrderID: orderID,
	})
	if err != nil {
		return types.Scan{}, err
	}

	scan.Username = sess.Username
	scan.OrderNumber = order.OrderNumber
	scan.DepartmentName = shard

	s.publishEvent(ctx, scan)
	return scan, nil
}

// List returns the scans visible to the session matching the filter,
// merged across shards and sorted by timestamp descending, annotated
// with username and owning department.
func (s *ScanService) List(ctx context.Context, sess types.Session, filter types.ScanFilter) ([]types.Scan, error) {
	var shards []string
	var err error
	if filter.DepartmentID != 0 {
		shards, err = s.router.ReadShardsForDepartment(ctx, sess, filter.DepartmentID)
	} else {
		shards, err = s.router.ReadShards(ctx, sess)
	}
	if err != nil {
		return nil, err
	}

	merged, err := s.gatherScans(ctx, shards, filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	if err := s.annotateUsers(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Update edits a scan's status and/or notes. Admin or Manager only;
// managers may only touch scans in their own department. Supplying no
// mutable field succeeds without changing anything.
func (s *ScanService) Update(ctx context.Context, sess types.Session, scanID int, status *types.ScanStatus, notes *string) (types.Scan, error) {
	if !sess.CanManageOrders() {
		return types.Scan{}, ErrForbidden
	}
	if status != nil && !status.Valid() {
		return types.Scan{}, ErrInvalidStatus
	}

	shards, err := s.editableShards(ctx, sess)
	if err != nil {
		return types.Scan{}, err
	}

	for _, shard := range shards {
		scan, err := s.scans.Update(ctx, shard, scanID, status, notes)
		if err == nil {
			scan.DepartmentName = shard
			updated := []types.Scan{scan}
			if err := s.annotateUsers(ctx, updated); err != nil {
				return types.Scan{}, err
			}
			return updated[0], nil
		}
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		return types.Scan{}, err
	}
	return types.Scan{}, store.ErrNotFound
}

// Delete removes a scan. Same search and authorization policy as Update.
func (s *ScanService) Delete(ctx context.Context, sess types.Session, scanID int) error {
	if !sess.CanManageOrders() {
		return ErrForbidden
	}

	shards, err := s.editableShards(ctx, sess)
	if err != nil {
		return err
	}

	for _, shard := range shards {
		err := s.scans.Delete(ctx, shard, scanID)
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

// editableShards resolves where a Manager or Admin may edit scans:
// admins search every shard, managers only their own department's.
func (s *ScanService) editableShards(ctx context.Context, sess types.Session) ([]string, error) {
	if sess.IsAdmin() {
		return s.router.AllShards(ctx)
	}
	if !sess.HasDepartment() {
		return nil, nil
	}
	return s.router.ReadShards(ctx, sess)
}

func (s *ScanService) gatherScans(ctx context.Context, shards []string, filter types.ScanFilter) ([]types.Scan, error) {
	shardFilter := types.ScanFilter{OrderID: filter.OrderID, UserID: filter.UserID}

	var mu sync.Mutex
	var merged []types.Scan

	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		g.Go(func() error {
			scans, err := s.scans.List(gctx, shard, shardFilter)
			if err != nil {
				return err
			}
			for i := range scans {
				scans[i].DepartmentName = shard
			}
			mu.Lock()
			merged = append(merged, scans...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *ScanService) annotateUsers(ctx context.Context, scans []types.Scan) error {
	usernames := make(map[int]string)
	for i := range scans {
		id := scans[i].UserID
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
		scans[i].Username = name
	}
	return nil
}

// publishEvent is best-effort: a broker outage must not reject a scan
// that is already durably stored.
func (s *ScanService) publishEvent(ctx context.Context, scan types.Scan) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(ScanEvent{
		ScanID:      scan.ID,
		Barcode:     scan.Barcode,
		Status:      scan.Status,
		OrderID:     scan.OrderID,
		OrderNumber: scan.OrderNumber,
		Department:  scan.DepartmentName,
		Username:    scan.Username,
		Timestamp:   scan.Timestamp,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("scan event marshal failed")
		return
	}

	attrs := map[string]string{"department": scan.DepartmentName}
	if _, err := s.publisher.Publish(ctx, s.channel, payload, attrs); err != nil {
		s.log.Error().Err(err).Int("scan_id", scan.ID).Msg("scan event publish failed")
	}
}
