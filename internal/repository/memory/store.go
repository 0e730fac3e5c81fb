// Package memory is an in-process implementation of the store ports, used by
// tests and by STORAGE=memory deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/ports/dispatchtx"
	"laundry-dispatch/internal/ports/store"
)

type itemKey struct{ product, category string }

// Store keeps every aggregate in maps behind one mutex. Transactions hold the
// mutex for their whole duration, so they are serializable.
type Store struct {
	mu            sync.Mutex
	orders        map[string]*domain.Order
	providers     map[int64]*domain.Provider
	couriers      map[int64]*domain.Courier
	items         map[itemKey]domain.CatalogItem
	payments      map[string]time.Time
	notifications []domain.Notification
	nextNotifID   int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orders:    make(map[string]*domain.Order),
		providers: make(map[int64]*domain.Provider),
		couriers:  make(map[int64]*domain.Courier),
		items:     make(map[itemKey]domain.CatalogItem),
		payments:  make(map[string]time.Time),
	}
}

var _ store.Store = (*Store)(nil)

// PutProvider inserts or replaces a provider.
func (s *Store) PutProvider(p domain.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = &p
}

// PutCourier inserts or replaces a courier.
func (s *Store) PutCourier(c domain.Courier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.couriers[c.ID] = cloneCourier(&c)
}

// PutItem inserts or replaces a catalog item.
func (s *Store) PutItem(it domain.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemKey{it.ProductKey, it.CategoryKey}] = it
}

// PutOrder inserts or replaces an order without any validation.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
}

func ctxErr(ctx context.Context) error {
	return apperr.FromContext(ctx.Err())
}

// CreateOrder stores a new order. Duplicate ids fail with apperr.ErrConflict.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("create order %s: %w", o.ID, apperr.ErrConflict)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// GetOrder returns a copy of the order.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return o.Clone(), nil
}

// UpdateOrderAtomic implements store.Orders.
func (s *Store) UpdateOrderAtomic(
	ctx context.Context,
	id string,
	precond func(*domain.Order) bool,
	mutate func(*domain.Order) error,
) (*domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	next := cur.Clone()
	if precond != nil && !precond(next) {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrPreconditionFailed)
	}
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.orders[id] = next
	return next.Clone(), nil
}

func (s *Store) filterOrders(keep func(*domain.Order) bool) []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindPendingRetriable returns PENDING orders with attempts below maxAttempts, oldest first.
func (s *Store) FindPendingRetriable(ctx context.Context, maxAttempts int) ([]domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterOrders(func(o *domain.Order) bool {
		return o.Status == domain.OrderPending && o.AssignmentAttempts < maxAttempts
	}), nil
}

// FindReadyForPickup returns READY_FOR_PICKUP orders still waiting for a courier.
func (s *Store) FindReadyForPickup(ctx context.Context) ([]domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterOrders(func(o *domain.Order) bool {
		return o.Status == domain.OrderReadyForPickup && !o.HasCourier()
	}), nil
}

// FindOutForDeliveryOverdue returns unflagged OUT_FOR_DELIVERY orders whose ETA passed.
func (s *Store) FindOutForDeliveryOverdue(ctx context.Context, now time.Time) ([]domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterOrders(func(o *domain.Order) bool {
		return o.Status == domain.OrderOutForDelivery && !o.DelayFlagged &&
			o.ETADelivery != nil && o.ETADelivery.Before(now)
	}), nil
}

// GetProvider returns a copy of the provider.
func (s *Store) GetProvider(ctx context.Context, id int64) (*domain.Provider, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %d: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// ListActiveProvidersWithCapacity returns approved ACTIVE providers below capacity, by id.
func (s *Store) ListActiveProvidersWithCapacity(ctx context.Context) ([]domain.Provider, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.Selectable() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCourier returns a copy of the courier.
func (s *Store) GetCourier(ctx context.Context, id int64) (*domain.Courier, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[id]
	if !ok {
		return nil, fmt.Errorf("courier %d: %w", id, apperr.ErrNotFound)
	}
	return cloneCourier(c), nil
}

// ListAvailableCouriersWithLocation returns AVAILABLE couriers with a known position, by id.
func (s *Store) ListAvailableCouriersWithLocation(ctx context.Context) ([]domain.Courier, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Courier, 0, len(s.couriers))
	for _, c := range s.couriers {
		if c.Selectable() {
			out = append(out, *cloneCourier(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateCourierLocation records the position and ping time.
func (s *Store) UpdateCourierLocation(ctx context.Context, id int64, p geo.Point, at time.Time) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[id]
	if !ok {
		return fmt.Errorf("courier %d: %w", id, apperr.ErrNotFound)
	}
	c.Location = &p
	c.LastPingAt = &at
	return nil
}

// SetCourierStatus implements store.Couriers.
func (s *Store) SetCourierStatus(ctx context.Context, id int64, from, to domain.CourierStatus) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[id]
	if !ok {
		return false, fmt.Errorf("courier %d: %w", id, apperr.ErrNotFound)
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

// DemoteIdleCouriers implements store.Couriers.
func (s *Store) DemoteIdleCouriers(ctx context.Context, cutoff time.Time) ([]int64, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, c := range s.couriers {
		if c.Status == domain.CourierOffline || c.Status == domain.CourierSuspended || c.CurrentOrderID != "" {
			continue
		}
		if c.LastPingAt == nil || !c.LastPingAt.Before(cutoff) {
			continue
		}
		c.Status = domain.CourierOffline
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// LookupItem returns the catalog item or apperr.ErrNotFound.
func (s *Store) LookupItem(ctx context.Context, productKey, categoryKey string) (*domain.CatalogItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemKey{productKey, categoryKey}]
	if !ok {
		return nil, fmt.Errorf("item %s/%s: %w", productKey, categoryKey, apperr.ErrNotFound)
	}
	return &it, nil
}

// PaymentSettled reports whether the order's payment was settled.
func (s *Store) PaymentSettled(ctx context.Context, orderID string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.payments[orderID]
	return ok, nil
}

// MarkPaymentSettled records settlement. Repeated calls keep the first timestamp.
func (s *Store) MarkPaymentSettled(ctx context.Context, orderID string, at time.Time) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	if _, ok := s.payments[orderID]; !ok {
		s.payments[orderID] = at
	}
	return nil
}

// SaveNotification appends n to the inbox and assigns its id.
func (s *Store) SaveNotification(ctx context.Context, n *domain.Notification) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNotifID++
	n.ID = s.nextNotifID
	s.notifications = append(s.notifications, *n)
	return nil
}

// ListNotifications returns the newest notifications of r first.
func (s *Store) ListNotifications(ctx context.Context, r domain.Recipient, limit int) ([]domain.Notification, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].Recipient == r {
			out = append(out, s.notifications[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// WithTx runs fn with exclusive access to the store. Writes made through tx are
// applied only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txRepo{
		s:         s,
		orders:    make(map[string]*domain.Order),
		providers: make(map[int64]*domain.Provider),
		couriers:  make(map[int64]*domain.Courier),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	for id, p := range tx.providers {
		s.providers[id] = p
	}
	for id, c := range tx.couriers {
		s.couriers[id] = c
	}
	return nil
}

// txRepo stages writes until commit. The store mutex is held by WithTx.
type txRepo struct {
	s         *Store
	orders    map[string]*domain.Order
	providers map[int64]*domain.Provider
	couriers  map[int64]*domain.Courier
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if o, ok := t.orders[id]; ok {
		return o.Clone(), nil
	}
	o, ok := t.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return o.Clone(), nil
}

func (t *txRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	t.orders[o.ID] = o.Clone()
	return nil
}

func (t *txRepo) GetProviderForUpdate(ctx context.Context, id int64) (*domain.Provider, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if p, ok := t.providers[id]; ok {
		cp := *p
		return &cp, nil
	}
	p, ok := t.s.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %d: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (t *txRepo) SaveProvider(ctx context.Context, p *domain.Provider) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	cp := *p
	t.providers[p.ID] = &cp
	return nil
}

func (t *txRepo) GetCourierForUpdate(ctx context.Context, id int64) (*domain.Courier, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if c, ok := t.couriers[id]; ok {
		return cloneCourier(c), nil
	}
	c, ok := t.s.couriers[id]
	if !ok {
		return nil, fmt.Errorf("courier %d: %w", id, apperr.ErrNotFound)
	}
	return cloneCourier(c), nil
}

func (t *txRepo) SaveCourier(ctx context.Context, c *domain.Courier) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	t.couriers[c.ID] = cloneCourier(c)
	return nil
}

func cloneCourier(c *domain.Courier) *domain.Courier {
	cp := *c
	if c.Location != nil {
		p := *c.Location
		cp.Location = &p
	}
	if c.LastPingAt != nil {
		ts := *c.LastPingAt
		cp.LastPingAt = &ts
	}
	return &cp
}
