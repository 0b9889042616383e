package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
)

// In-memory stand-ins for the repositories. They reproduce the sentinel
// errors the real Postgres-backed stores return so the services under
// test exercise the same branches.

type fakeDepartmentStore struct {
	mu          sync.Mutex
	nextID      int
	departments []types.Department
}

func newFakeDepartmentStore(names ...string) *fakeDepartmentStore {
	f := &fakeDepartmentStore{}
	for _, name := range names {
		_, _ = f.Create(context.Background(), name)
	}
	return f
}

func (f *fakeDepartmentStore) List(ctx context.Context) ([]types.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Department(nil), f.departments...), nil
}

func (f *fakeDepartmentStore) GetByID(ctx context.Context, id int) (types.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dept := range f.departments {
		if dept.ID == id {
			return dept, nil
		}
	}
	return types.Department{}, store.ErrNotFound
}

func (f *fakeDepartmentStore) Create(ctx context.Context, name string) (types.Department, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dept := range f.departments {
		if dept.Name == name {
			return types.Department{}, store.ErrDuplicateDepartment
		}
	}
	f.nextID++
	dept := types.Department{ID: f.nextID, Name: name}
	f.departments = append(f.departments, dept)
	return dept, nil
}

func (f *fakeDepartmentStore) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, dept := range f.departments {
		if dept.ID == id {
			f.departments = append(f.departments[:i], f.departments[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type fakeShardStore struct {
	mu       sync.Mutex
	existing map[string]bool
}

func newFakeShardStore(shards ...string) *fakeShardStore {
	f := &fakeShardStore{existing: make(map[string]bool)}
	for _, shard := range shards {
		f.existing[shard] = true
	}
	return f
}

func (f *fakeShardStore) EnsureShard(ctx context.Context, department string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[department] = true
	return nil
}

func (f *fakeShardStore) Existing(ctx context.Context, departments []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []string
	for _, dept := range departments {
		if f.existing[dept] {
			found = append(found, dept)
		}
	}
	return found, nil
}

type fakeOrderStore struct {
	mu     sync.Mutex
	nextID int
	orders map[string][]types.Order

	// When set, DeleteWithScans cascades into it the way the
	// transactional Postgres delete does.
	scans *fakeScanStore
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string][]types.Order)}
}

func (f *fakeOrderStore) Insert(ctx context.Context, shard string, order types.Order) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.orders[shard] {
		if existing.OrderNumber == order.OrderNumber {
			return types.Order{}, store.ErrDuplicateOrderNumber
		}
	}
	f.nextID++
	order.ID = f.nextID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	f.orders[shard] = append(f.orders[shard], order)
	return order, nil
}

func (f *fakeOrderStore) List(ctx context.Context, shard string) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Order(nil), f.orders[shard]...), nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, shard string, id int) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders[shard] {
		if order.ID == id {
			return order, nil
		}
	}
	return types.Order{}, store.ErrNotFound
}

func (f *fakeOrderStore) GetByNumber(ctx context.Context, shard, orderNumber string) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders[shard] {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return types.Order{}, store.ErrNotFound
}

func (f *fakeOrderStore) DeleteWithScans(ctx context.Context, shard string, orderID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, order := range f.orders[shard] {
		if order.ID == orderID {
			f.orders[shard] = append(f.orders[shard][:i], f.orders[shard][i+1:]...)
			if f.scans != nil {
				f.scans.deleteByOrder(shard, orderID)
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeOrderStore) CountByUser(ctx context.Context, shard string, userID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, order := range f.orders[shard] {
		if order.CreatedBy == userID {
			count++
		}
	}
	return count, nil
}

type fakeScanStore struct {
	mu     sync.Mutex
	nextID int
	scans  map[string][]types.Scan
}

func newFakeScanStore() *fakeScanStore {
	return &fakeScanStore{scans: make(map[string][]types.Scan)}
}

func (f *fakeScanStore) Insert(ctx context.Context, shard string, scan types.Scan) (types.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.scans[shard] {
		if existing.Barcode == scan.Barcode && existing.OrderID == scan.OrderID {
			return types.Scan{}, store.ErrDuplicateBarcode
		}
	}
	f.nextID++
	scan.ID = f.nextID
	if scan.Timestamp.IsZero() {
		scan.Timestamp = time.Now().UTC()
	}
	f.scans[shard] = append(f.scans[shard], scan)
	return scan, nil
}

func (f *fakeScanStore) List(ctx context.Context, shard string, filter types.ScanFilter) ([]types.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []types.Scan
	for _, scan := range f.scans[shard] {
		if filter.OrderID != 0 && scan.OrderID != filter.OrderID {
			continue
		}
		if filter.UserID != 0 && scan.UserID != filter.UserID {
			continue
		}
		matched = append(matched, scan)
	}
	return matched, nil
}

func (f *fakeScanStore) GetByID(ctx context.Context, shard string, id int) (types.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, scan := range f.scans[shard] {
		if scan.ID == id {
			return scan, nil
		}
	}
	return types.Scan{}, store.ErrNotFound
}

func (f *fakeScanStore) Update(ctx context.Context, shard string, id int, status *types.ScanStatus, notes *string) (types.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, scan := range f.scans[shard] {
		if scan.ID != id {
			continue
		}
		if status != nil {
			scan.Status = *status
		}
		if notes != nil {
			scan.Notes = *notes
		}
		f.scans[shard][i] = scan
		return scan, nil
	}
	return types.Scan{}, store.ErrNotFound
}

func (f *fakeScanStore) Delete(ctx context.Context, shard string, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, scan := range f.scans[shard] {
		if scan.ID == id {
			f.scans[shard] = append(f.scans[shard][:i], f.scans[shard][i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeScanStore) deleteByOrder(shard string, orderID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.scans[shard][:0]
	for _, scan := range f.scans[shard] {
		if scan.OrderID != orderID {
			kept = append(kept, scan)
		}
	}
	f.scans[shard] = kept
}

func (f *fakeScanStore) Count(ctx context.Context, shard string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scans[shard]), nil
}

func (f *fakeScanStore) CountByUser(ctx context.Context, shard string, userID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, scan := range f.scans[shard] {
		if scan.UserID == userID {
			count++
		}
	}
	return count, nil
}

type fakeUserStore struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int]types.User)}
}

func (f *fakeUserStore) add(user types.User) types.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	user.ID = f.nextID
	f.users[user.ID] = user
	return user
}

func (f *fakeUserStore) GetByID(ctx context.Context, id int) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetByUsername(ctx context.Context, username string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserStore) List(ctx context.Context) ([]types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]types.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeUserStore) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := f.GetByUsername(ctx, user.Username); err == nil {
		return types.User{}, store.ErrDuplicateUsername
	}
	return f.add(user), nil
}

func (f *fakeUserStore) Update(ctx context.Context, id int, update store.UserUpdate) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.SetDepartment {
		user.DepartmentID = update.DepartmentID
	}
	f.users[id] = user
	return user, nil
}

func (f *fakeUserStore) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserStore) CountByDepartment(ctx context.Context, departmentID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, user := range f.users {
		if user.DepartmentID != nil && *user.DepartmentID == departmentID {
			count++
		}
	}
	return count, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	channel string
	data    []byte
	attrs   map[string]string
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, publishedMessage{channel: channel, data: data, attrs: attrs})
	return fmt.Sprintf("msg-%d", len(f.published)), nil
}

func intPtr(v int) *int { return &v }

func deptSession(userID int, role types.Role, deptID int, deptName string) types.Session {
	return types.Session{
		UserID:         userID,
		Username:       fmt.Sprintf("user%d", userID),
		Role:           role,
		DepartmentID:   intPtr(deptID),
		DepartmentName: deptName,
	}
}
