// Package report computes sales summaries over calendar date ranges.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brewtopia/cafepos/internal/application"
	"github.com/brewtopia/cafepos/internal/domain/catalog"
	domain "github.com/brewtopia/cafepos/internal/domain/order"
	"github.com/brewtopia/cafepos/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	reportService    = "report-service"
	useCaseSummarize = "report.summary"

	// TopItemsLimit is how many best sellers a summary lists.
	TopItemsLimit = 5
)

type SummaryQuery struct {
	From string
	To   string
}

type TopItem struct {
	MenuItemID int64
	Name       string
	Quantity   int
	Revenue    decimal.Decimal
}

type Summary struct {
	From          time.Time
	To            time.Time
	TotalSales    decimal.Decimal
	OrderCount    int
	AvgOrderValue decimal.Decimal
	PaidCount     int
	TopItems      []TopItem
}

// Aggregator reads the repository directly; it never goes through the lifecycle engine.
type Aggregator struct {
	repo    domain.Repository
	catalog catalog.Lookup
	loc     *time.Location
	inst    application.Instruments
}

var _ application.UseCase[SummaryQuery, *Summary] = (*Aggregator)(nil)

type Option func(*Aggregator)

// WithLocation sets the zone calendar dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func WithObservability(tel observability.Observability) Option {
	return func(a *Aggregator) {
		if tel != nil {
			a.inst = application.NewInstruments(tel, reportService)
		}
	}
}

func NewAggregator(repo domain.Repository, lookup catalog.Lookup, opts ...Option) *Aggregator {
	a := &Aggregator{
		repo:    repo,
		catalog: lookup,
		loc:     time.Local,
		inst:    application.NewInstruments(observability.Nop(), reportService),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute summarizes orders created between the start of q.From and the end
// of q.To, both inclusive.
func (a *Aggregator) Execute(ctx context.Context, q SummaryQuery) (_ *Summary, err error) {
	ctx, run := a.inst.Begin(ctx, useCaseSummarize, "Summarize",
		attribute.String("report.from", q.From),
		attribute.String("report.to", q.To),
	)
	defer func() { run.End(err) }()

	start, end, err := a.window(q)
	if err != nil {
		run.Fail("INVALID_RANGE")
		return nil, err
	}

	var (
		agg   domain.Aggregate
		tally []domain.ItemTally
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agg, err = a.repo.SumAndCountByRange(gctx, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		tally, err = a.repo.TopItemsByQuantity(gctx, start, end, TopItemsLimit)
		return err
	})
	if err = g.Wait(); err != nil {
		err = fmt.Errorf("%w: summary: %w", domain.ErrRepository, err)
		run.Fail("REPOSITORY_ERROR")
		run.Logger.Error("report_query_failed", observability.F("error", err.Error()))
		return nil, err
	}

	top, err := a.nameItems(ctx, tally)
	if err != nil {
		run.Fail("REPOSITORY_ERROR")
		return nil, err
	}

	summary := &Summary{
		From:          start,
		To:            end,
		TotalSales:    agg.TotalSales,
		OrderCount:    agg.OrderCount,
		AvgOrderValue: average(agg.TotalSales, agg.OrderCount),
		PaidCount:     agg.PaidCount,
		TopItems:      top,
	}
	run.Annotate(
		observability.F("order_count", summary.OrderCount),
		observability.F("total_sales", summary.TotalSales.String()),
	)
	return summary, nil
}

func (a *Aggregator) window(q SummaryQuery) (time.Time, time.Time, error) {
	from, to := strings.TrimSpace(q.From), strings.TrimSpace(q.To)
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: both 'from' and 'to' dates are required (YYYY-MM-DD)", domain.ErrInvalidRange)
	}
	fromDay, err := time.ParseInLocation(domain.DateLayout, from, a.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 'from' is not a YYYY-MM-DD date: %q", domain.ErrInvalidRange, from)
	}
	toDay, err := time.ParseInLocation(domain.DateLayout, to, a.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 'to' is not a YYYY-MM-DD date: %q", domain.ErrInvalidRange, to)
	}
	if fromDay.After(toDay) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 'from' is after 'to'", domain.ErrInvalidRange)
	}

	start, _ := domain.DayBounds(fromDay, a.loc)
	_, end := domain.DayBounds(toDay, a.loc)
	return start, end, nil
}

// nameItems attaches current catalog names. Items that no longer resolve, or
// are inactive, get the placeholder name and contribute no revenue.
func (a *Aggregator) nameItems(ctx context.Context, tally []domain.ItemTally) ([]TopItem, error) {
	out := make([]TopItem, 0, len(tally))
	for _, t := range tally {
		item := TopItem{
			MenuItemID: t.MenuItemID,
			Name:       catalog.UnknownItemName,
			Quantity:   t.Quantity,
			Revenue:    decimal.Zero,
		}
		resolved, err := a.catalog.Resolve(ctx, t.MenuItemID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("%w: resolve menu item %d: %w", domain.ErrRepository, t.MenuItemID, err)
		case resolved.IsActive:
			item.Name = resolved.Name
			item.Revenue = t.Revenue
		}
		out = append(out, item)
	}
	return out, nil
}

func average(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(count)), 2)
}
