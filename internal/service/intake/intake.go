// Package intake validates, prices and persists new orders.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/retry"
)

// ItemRequest is one requested line.
type ItemRequest struct {
	ProductKey  string
	CategoryKey string
	Quantity    int
}

// Request is a customer's order draft.
type Request struct {
	CustomerID          int64
	Pickup              *domain.Location
	Delivery            *domain.Location
	Items               []ItemRequest
	PaymentMethod       domain.PaymentMethod
	PreferredProviderID int64
	Priority            domain.Priority
}

// Config holds pricing and assignment seeds.
type Config struct {
	InitialRadiusKm     float64
	DeliveryChargePerKm float64
	OperationTimeout    time.Duration
}

// Deps wires the service.
type Deps struct {
	Orders  orderCreator
	Catalog catalog
	Engine  assigner
	Retrier *retry.Retrier
	Clock   clock.Clock
	Logger  logx.Logger
	NewID   func() string
}

// Service creates orders and hands them to phase A.
type Service struct {
	orders  orderCreator
	catalog catalog
	engine  assigner
	retrier *retry.Retrier
	clock   clock.Clock
	logger  logx.Logger
	newID   func() string
	cfg     Config
}

// New returns a Service.
func New(d Deps, cfg Config) *Service {
	if cfg.InitialRadiusKm <= 0 {
		cfg.InitialRadiusKm = 5
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 3 * time.Second
	}
	if d.Logger == nil {
		d.Logger = logx.Nop()
	}
	if d.Retrier == nil {
		d.Retrier = retry.New(retry.DefaultPolicy(), d.Logger, nil)
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Service{
		orders:  d.Orders,
		catalog: d.Catalog,
		engine:  d.Engine,
		retrier: d.Retrier,
		clock:   d.Clock,
		logger:  d.Logger,
		newID:   d.NewID,
		cfg:     cfg,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperr.ErrInvalid)
}

// validate checks the draft and fills in defaults.
func validate(r *Request) error {
	if r.CustomerID <= 0 {
		return invalid("customer id is required")
	}
	if r.Pickup == nil && r.Delivery == nil {
		return invalid("pickup or delivery location is required")
	}
	for _, l := range []*domain.Location{r.Pickup, r.Delivery} {
		if l == nil {
			continue
		}
		if err := l.Validate(); err != nil {
			return err
		}
	}
	if len(r.Items) == 0 {
		return invalid("at least one item is required")
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.ProductKey) == "" || strings.TrimSpace(it.CategoryKey) == "" {
			return invalid("item %d: product and category keys are required", i)
		}
		if it.Quantity <= 0 {
			return invalid("item %d: quantity must be positive", i)
		}
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = domain.PaymentOnline
	}
	if !r.PaymentMethod.Valid() {
		return invalid("payment method %q", r.PaymentMethod)
	}
	if r.Priority == "" {
		r.Priority = domain.PriorityNormal
	}
	if !r.Priority.Valid() {
		return invalid("priority %q", r.Priority)
	}
	if r.PreferredProviderID < 0 {
		return invalid("preferred provider %d", r.PreferredProviderID)
	}
	return nil
}

// Create validates and prices the draft, stores it as PENDING and runs phase A.
// The returned order reflects the assignment; an assignment failure leaves the
// order PENDING for the sweep and does not fail creation.
func (s *Service) Create(ctx context.Context, r Request) (*domain.Order, error) {
	if err := validate(&r); err != nil {
		return nil, err
	}

	o, err := s.price(ctx, r)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	o.ID = s.newID()
	o.CustomerID = r.CustomerID
	o.Pickup, o.Delivery = r.Pickup, r.Delivery
	o.PaymentMethod = r.PaymentMethod
	o.PreferredProviderID = r.PreferredProviderID
	o.Priority = r.Priority
	o.Status = domain.OrderPending
	o.MaxRadiusKm = s.cfg.InitialRadiusKm
	o.CreatedAt, o.UpdatedAt = now, now

	cctx, cancel := s.withTimeout(ctx)
	err = s.retrier.Do(cctx, "create order", func(ctx context.Context) error {
		return s.orders.CreateOrder(ctx, o)
	})
	cancel()
	if err != nil {
		return nil, err
	}
	s.logger.Info("order created",
		logx.Event("order_created"),
		logx.OrderID(o.ID),
		logx.Int64("customer_id", o.CustomerID),
		logx.String("priority", string(o.Priority)),
		logx.String("grand_total", o.GrandTotal.String()),
	)

	res, err := s.engine.AssignProvider(ctx, o.ID)
	if err != nil {
		s.logger.Warn("initial assignment failed, left for the sweep",
			logx.OrderID(o.ID),
			logx.Err(err),
		)
		return o, nil
	}
	if res.Order != nil {
		return res.Order, nil
	}
	return o, nil
}

// price resolves the items against the catalog and computes the totals.
func (s *Service) price(ctx context.Context, r Request) (*domain.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	o := &domain.Order{Items: make([]domain.LineItem, 0, len(r.Items))}
	for _, it := range r.Items {
		var ci *domain.CatalogItem
		err := s.retrier.Do(ctx, "lookup item", func(ctx context.Context) error {
			var err error
			ci, err = s.catalog.LookupItem(ctx, it.ProductKey, it.CategoryKey)
			return err
		})
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", it.ProductKey, it.CategoryKey, apperr.ErrCatalogMiss)
		}
		if err != nil {
			return nil, err
		}
		if !ci.InStock {
			return nil, fmt.Errorf("%s/%s: %w", it.ProductKey, it.CategoryKey, apperr.ErrOutOfStock)
		}
		line := domain.LineItem{
			ProductKey:  ci.ProductKey,
			CategoryKey: ci.CategoryKey,
			Quantity:    it.Quantity,
			UnitPrice:   ci.UnitPrice(),
			ServiceKind: ci.ServiceKind,
		}
		o.Items = append(o.Items, line)
		o.Subtotal += line.Total()
	}

	if r.Pickup != nil && r.Delivery != nil {
		o.DeliveryKm = geo.MustDistance(r.Pickup.Point, r.Delivery.Point)
	}
	if r.Delivery != nil {
		o.DeliveryCharge = domain.MoneyFromUnits(o.DeliveryKm * s.cfg.DeliveryChargePerKm)
	}
	o.GrandTotal = o.Subtotal + o.DeliveryCharge
	return o, nil
}
