package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brewtopia/cafepos/internal/application"
	"github.com/brewtopia/cafepos/internal/domain/catalog"
	domain "github.com/brewtopia/cafepos/internal/domain/order"
	domoutbox "github.com/brewtopia/cafepos/internal/domain/outbox"
	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService = "order-service"

	useCaseCreate   = "order.create"
	useCaseReplace  = "order.replace"
	useCasePay      = "order.pay"
	useCaseGet      = "order.get"
	useCaseListDay  = "order.list_today"
	publishPeer     = "outbox"
	catalogPeer     = "catalog"
	resolveEndpoint = "resolve"
)

// Service is the order lifecycle engine. It prices requested lines against the
// catalog, enforces the unpaid -> paid state machine, persists through the
// repository and hands committed orders to the publisher.
//
// Mutations on one order id are serialized by an in-process lock held across
// fetch, check, persist and publish; repositories additionally refuse line
// replacement on paid orders so concurrent processes stay safe.
type Service struct {
	repo      domain.Repository
	catalog   catalog.Lookup
	publisher domoutbox.Publisher
	clock     Clock
	loc       *time.Location
	locks     *keyedLocks

	inst application.Instruments
	// RED metrics for calls leaving the engine (supplied via DI).
	extCounter      observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram    observability.Histogram // external_request_duration_seconds{peer,endpoint}
	publishFailures observability.Counter   // order_event_publish_failed_total{event}
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocation sets the zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithObservability(tel observability.Observability) Option {
	return func(s *Service) {
		if tel == nil {
			return
		}
		s.inst = application.NewInstruments(tel, orderService)
		metrics := tel.Metrics()
		s.extCounter = metrics.Counter(observability.MExternalRequests)
		s.extHistogram = metrics.Histogram(observability.MExternalRequestDuration)
		s.publishFailures = metrics.Counter(observability.MEventPublishFailures)
	}
}

// NewService wires the engine. publisher may be nil when nothing listens.
func NewService(repo domain.Repository, lookup catalog.Lookup, publisher domoutbox.Publisher, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		catalog:   lookup,
		publisher: publisher,
		clock:     time.Now,
		loc:       time.Local,
		locks:     newKeyedLocks(),
	}
	WithObservability(observability.Nop())(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder prices the requested lines and persists a new unpaid order.
// Nothing is written when any line fails validation or resolution.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (_ *domain.Order, err error) {
	ctx, run := s.inst.Begin(ctx, useCaseCreate, "CreateOrder",
		attribute.Int("order.table_no", in.TableNo),
		attribute.Int("order.line_count", len(in.Lines)),
	)
	defer func() { run.End(err) }()

	names, lines, err := s.priceLines(ctx, in.Lines)
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}

	entity, err := domain.New(in.TableNo, lines, domain.Stamp(s.clock()))
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}

	created, err := s.repo.Create(ctx, entity)
	if err != nil {
		err = wrapRepositoryError("create", err)
		run.Fail(statusFor(err))
		run.Logger.Error("order_create_failed", observability.F("error", err.Error()))
		return nil, err
	}

	result := s.materialize(ctx, created, names)
	run.Span.SetAttributes(attribute.Int64("order.id", result.ID))
	run.Annotate(
		observability.F("order_id", result.ID),
		observability.F("total", result.Total.String()),
	)
	s.publish(ctx, run, domain.EventCreated, result)
	return result, nil
}

// ReplaceOrder overwrites every line and the table of an unpaid order.
// Existence is checked first, then payment state, then the payload.
func (s *Service) ReplaceOrder(ctx context.Context, in ReplaceOrderInput) (_ *domain.Order, err error) {
	ctx, run := s.inst.Begin(ctx, useCaseReplace, "ReplaceOrder",
		attribute.Int64("order.id", in.OrderID),
		attribute.Int("order.table_no", in.TableNo),
		attribute.Int("order.line_count", len(in.Lines)),
	)
	defer func() { run.End(err) }()
	run.Annotate(observability.F("order_id", in.OrderID))

	unlock := s.locks.Lock(in.OrderID)
	defer unlock()

	current, err := s.repo.FindByID(ctx, in.OrderID)
	if err != nil {
		err = wrapRepositoryError("find", err)
		run.Fail(statusFor(err))
		return nil, err
	}

	names, lines, err := s.priceLinesFor(ctx, current, in.Lines)
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}

	next := current.Clone()
	if err = next.Replace(in.TableNo, lines, domain.Stamp(s.clock())); err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}

	updated, err := s.repo.ReplaceLines(ctx, next.ID, next.Lines, next.Total, next.TableNo, next.UpdatedAt)
	if err != nil {
		err = wrapRepositoryError("replace", err)
		run.Fail(statusFor(err))
		if errors.Is(err, domain.ErrRepository) {
			run.Logger.Error("order_replace_failed", observability.F("error", err.Error()))
		}
		return nil, err
	}

	result := s.materialize(ctx, updated, names)
	run.Annotate(observability.F("total", result.Total.String()))
	s.publish(ctx, run, domain.EventUpdated, result)
	return result, nil
}

// MarkPaid flips an order to paid. Paying a paid order returns it unchanged
// and publishes nothing.
func (s *Service) MarkPaid(ctx context.Context, orderID int64) (_ *domain.Order, err error) {
	ctx, run := s.inst.Begin(ctx, useCasePay, "MarkPaid",
		attribute.Int64("order.id", orderID),
	)
	defer func() { run.End(err) }()
	run.Annotate(observability.F("order_id", orderID))

	unlock := s.locks.Lock(orderID)
	defer unlock()

	current, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		err = wrapRepositoryError("find", err)
		run.Fail(statusFor(err))
		return nil, err
	}

	if !current.MarkPaid(domain.Stamp(s.clock())) {
		run.Status = "ALREADY_PAID_NOOP"
		return s.materialize(ctx, current, nil), nil
	}

	paid, err := s.repo.SetPaid(ctx, orderID, current.UpdatedAt)
	if err != nil {
		err = wrapRepositoryError("set paid", err)
		run.Fail(statusFor(err))
		if errors.Is(err, domain.ErrRepository) {
			run.Logger.Error("order_pay_failed", observability.F("error", err.Error()))
		}
		return nil, err
	}

	result := s.materialize(ctx, paid, nil)
	s.publish(ctx, run, domain.EventPaid, result)
	return result, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (_ *domain.Order, err error) {
	ctx, run := s.inst.Begin(ctx, useCaseGet, "GetOrder",
		attribute.Int64("order.id", orderID),
	)
	defer func() { run.End(err) }()

	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		err = wrapRepositoryError("find", err)
		run.Fail(statusFor(err))
		return nil, err
	}
	return s.materialize(ctx, o, nil), nil
}

// ListToday returns orders created during the current calendar day in the
// configured location, newest first.
func (s *Service) ListToday(ctx context.Context) (_ []*domain.Order, err error) {
	ctx, run := s.inst.Begin(ctx, useCaseListDay, "ListToday")
	defer func() { run.End(err) }()

	start, end := domain.DayBounds(s.clock(), s.loc)
	orders, err := s.repo.FindByCreatedRange(ctx, start, end)
	if err != nil {
		err = wrapRepositoryError("list", err)
		run.Fail(statusFor(err))
		return nil, err
	}

	names := make(map[int64]string)
	out := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, s.materialize(ctx, o, names))
	}
	run.Annotate(observability.F("count", len(out)))
	return out, nil
}

// priceLinesFor refuses paid orders before looking at the payload.
func (s *Service) priceLinesFor(ctx context.Context, current *domain.Order, inputs []LineInput) (map[int64]string, []domain.Line, error) {
	if current.Paid {
		return nil, nil, domain.ErrAlreadyPaid
	}
	return s.priceLines(ctx, inputs)
}

// priceLines validates the raw request and snapshots catalog prices. Inactive
// and unknown items are both rejected.
func (s *Service) priceLines(ctx context.Context, inputs []LineInput) (map[int64]string, []domain.Line, error) {
	if len(inputs) == 0 {
		return nil, nil, domain.NewValidation("at least one item is required")
	}
	for i, in := range inputs {
		if in.Quantity < 1 {
			return nil, nil, domain.NewValidation("item %d: quantity must be at least 1", i+1)
		}
		if in.Quantity > domain.MaxQuantity {
			return nil, nil, domain.NewValidation("item %d: quantity must be at most %d", i+1, domain.MaxQuantity)
		}
	}

	names := make(map[int64]string, len(inputs))
	lines := make([]domain.Line, 0, len(inputs))
	for _, in := range inputs {
		item, err := s.resolve(ctx, in.MenuItemID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			return nil, nil, fmt.Errorf("%w: menu item %d does not exist", domain.ErrInvalidMenuItem, in.MenuItemID)
		case err != nil:
			return nil, nil, wrapRepositoryError("resolve menu item", err)
		case !item.IsActive:
			return nil, nil, fmt.Errorf("%w: menu item %d is not available", domain.ErrInvalidMenuItem, in.MenuItemID)
		}
		names[item.ID] = item.Name
		lines = append(lines, domain.Line{
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   in.Quantity,
			UnitPrice:  item.Price,
		})
	}
	return names, lines, nil
}

func (s *Service) resolve(ctx context.Context, id int64) (catalog.MenuItem, error) {
	start := time.Now()
	item, err := s.catalog.Resolve(ctx, id)
	outcome := "success"
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		outcome = "error"
	}
	s.recordExternal(catalogPeer, resolveEndpoint, outcome, start)
	return item, err
}

// materialize fills line names from the catalog. names caches lookups across
// calls and may be nil. Lines whose item no longer resolves show a placeholder.
func (s *Service) materialize(ctx context.Context, o *domain.Order, names map[int64]string) *domain.Order {
	if names == nil {
		names = make(map[int64]string)
	}
	out := o.Clone()
	for i := range out.Lines {
		id := out.Lines[i].MenuItemID
		name, ok := names[id]
		if !ok {
			item, err := s.resolve(ctx, id)
			switch {
			case err == nil:
				name = item.Name
			default:
				if !errors.Is(err, catalog.ErrNotFound) {
					logctx.FromOr(ctx, s.inst.Log).Warn("menu_item_lookup_failed",
						observability.F("menu_item_id", id),
						observability.F("error", err.Error()),
					)
				}
				name = catalog.UnknownItemName
			}
			names[id] = name
		}
		out.Lines[i].Name = name
	}
	return out
}

// publish runs after the mutation committed. Failures are logged and counted,
// never returned.
func (s *Service) publish(ctx context.Context, run *application.Run, kind domain.EventKind, o *domain.Order) {
	if s.publisher == nil {
		return
	}
	evt := domain.NewEvent(kind, o)
	start := time.Now()
	err := s.publisher.Publish(ctx, evt)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.recordExternal(publishPeer, evt.EventName(), outcome, start)

	if err != nil {
		s.publishFailures.Add(1, observability.L("event", evt.EventName()))
		run.Logger.Warn("order_event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Service) recordExternal(peer, endpoint, outcome string, start time.Time) {
	if s.extCounter != nil {
		s.extCounter.Add(1,
			observability.L("peer", peer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
	}
	if s.extHistogram != nil {
		s.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peer),
			observability.L("endpoint", endpoint),
		)
	}
}

// wrapRepositoryError keeps domain sentinels and folds everything else into ErrRepository.
func wrapRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyPaid) || errors.Is(err, domain.ErrRepository) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrRepository, op, err)
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyPaid):
		return "ORDER_ALREADY_PAID"
	case errors.Is(err, domain.ErrInvalidMenuItem):
		return "INVALID_MENU_ITEM"
	case errors.Is(err, domain.ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrRepository):
		return "REPOSITORY_ERROR"
	default:
		return "ERROR"
	}
}
