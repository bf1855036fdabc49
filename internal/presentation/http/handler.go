// Package httppresentation serves the cafe POS REST API and the realtime
// order feed.
package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/brewtopia/cafepos/internal/application"
	appOrder "github.com/brewtopia/cafepos/internal/application/order"
	"github.com/brewtopia/cafepos/internal/application/report"
	"github.com/brewtopia/cafepos/internal/domain/catalog"
	domainOrder "github.com/brewtopia/cafepos/internal/domain/order"
	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/observability/logctx"
	"github.com/brewtopia/cafepos/internal/wire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	tracerName           = "cafepos.http"
	maxBodyBytes         = 1 << 20
)

// OrderEngine is the order lifecycle surface the API drives.
type OrderEngine interface {
	CreateOrder(ctx context.Context, in appOrder.CreateOrderInput) (*domainOrder.Order, error)
	ReplaceOrder(ctx context.Context, in appOrder.ReplaceOrderInput) (*domainOrder.Order, error)
	MarkPaid(ctx context.Context, orderID int64) (*domainOrder.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*domainOrder.Order, error)
	ListToday(ctx context.Context) ([]*domainOrder.Order, error)
}

type Deps struct {
	Orders  OrderEngine
	Reports application.UseCase[report.SummaryQuery, *report.Summary]
	Menu    catalog.Lookup
	Auth    Authenticator
	// Realtime serves the websocket feed; nil disables /ws.
	Realtime http.Handler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	orders    OrderEngine
	reports   application.UseCase[report.SummaryQuery, *report.Summary]
	menu      catalog.Lookup
	auth      Authenticator
	realtime  http.Handler
	metrics   http.Handler
	log       observability.Logger
	tracer    trace.Tracer
	requests  observability.Counter
	durations observability.Histogram
}

func NewHandler(deps Deps, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		orders:    deps.Orders,
		reports:   deps.Reports,
		menu:      deps.Menu,
		auth:      deps.Auth,
		realtime:  deps.Realtime,
		metrics:   deps.Metrics,
		log:       tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tracer:    otel.Tracer(tracerName),
		requests:  tel.Metrics().Counter(observability.MHTTPRequests),
		durations: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.handle(mux, "GET /{$}", h.handleBanner)
	h.handle(mux, "GET /health", h.handleHealth)
	h.handle(mux, "POST /api/auth/login", h.handleLogin)

	h.handleAuthed(mux, "GET /api/menu", h.handleMenu)
	h.handleAuthed(mux, "GET /api/menu/categories", h.handleCategories)

	h.handleAuthed(mux, "POST /api/orders", h.handleCreateOrder)
	h.handleAuthed(mux, "GET /api/orders/today", h.handleListToday)
	h.handleAuthed(mux, "GET /api/orders/report/summary", h.handleSummary)
	h.handleAuthed(mux, "GET /api/orders/{id}", h.handleGetOrder)
	h.handleAuthed(mux, "PUT /api/orders/{id}", h.handleReplaceOrder)
	h.handleAuthed(mux, "PUT /api/orders/{id}/pay", h.handleMarkPaid)

	if h.realtime != nil {
		// Long-lived: logged and authenticated, but kept out of latency metrics and traces.
		const route = "GET /ws"
		mux.Handle(route, h.withRoute(route,
			ObservabilityMiddleware(h.log, requestIDHeader)(
				h.withAccessLog(h.requireAuth(true, h.realtime)),
			),
		))
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return mux
}

// handle wires a route with middlewares:
// Trace → ObservabilityMiddleware (request logger) → Access log → HTTP metrics → Handler
func (h *Handler) handle(mux *http.ServeMux, route string, handler http.HandlerFunc) {
	mux.Handle(route, h.chain(route, handler))
}

func (h *Handler) handleAuthed(mux *http.ServeMux, route string, handler http.HandlerFunc) {
	mux.Handle(route, h.chain(route, h.requireAuth(false, handler)))
}

func (h *Handler) chain(route string, next http.Handler) http.Handler {
	return h.withRoute(route,
		h.withTrace(
			ObservabilityMiddleware(h.log, requestIDHeader)(
				h.withAccessLog(
					h.withHTTPMetrics(next),
				),
			),
		),
	)
}

// withRoute stores the stable route template for low-cardinality labels.
func (h *Handler) withRoute(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	})
}

func requestIDHeader(r *http.Request) string {
	return r.Header.Get(headerRequestID)
}

func (h *Handler) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Brewtopia Cafe POS API is running")
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeDomainError(w, r, domainOrder.NewValidation("username and password are required"))
		return
	}

	token, id, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		logctx.FromOr(r.Context(), h.log).Warn("auth_login_failed", observability.F("username", req.Username))
		writeDomainError(w, r, err)
		return
	}
	logctx.FromOr(r.Context(), h.log).Info("auth_login", observability.F("username", id.Username))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: id.ExpiresAt.UTC()})
}

type menuItemResponse struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Price      json.Number `json:"price"`
	IsVeg      bool        `json:"isVeg"`
	CategoryID int64       `json:"categoryId"`
}

type categoryResponse struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	SortOrder int                `json:"sortOrder"`
	Items     []menuItemResponse `json:"items,omitempty"`
}

func (h *Handler) handleMenu(w http.ResponseWriter, r *http.Request) {
	categories, err := h.menu.Menu(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		resp := categoryResponse{ID: c.ID, Name: c.Name, SortOrder: c.SortOrder, Items: []menuItemResponse{}}
		for _, it := range c.Items {
			resp.Items = append(resp.Items, menuItemResponse{
				ID:         it.ID,
				Name:       it.Name,
				Price:      wire.Money(it.Price),
				IsVeg:      it.IsVeg,
				CategoryID: c.ID,
			})
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.menu.Menu(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name, SortOrder: c.SortOrder})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

type lineRequest struct {
	MenuItemID int64 `json:"menuItemId"`
	Quantity   int   `json:"quantity"`
}

type orderRequest struct {
	TableNo int           `json:"tableNo"`
	Items   []lineRequest `json:"items"`
}

func (req orderRequest) lines() []appOrder.LineInput {
	out := make([]appOrder.LineInput, 0, len(req.Items))
	for _, it := range req.Items {
		out = append(out, appOrder.LineInput{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	return out
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), appOrder.CreateOrderInput{
		TableNo: req.TableNo,
		Lines:   req.lines(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.FromOrder(o))
}

func (h *Handler) handleReplaceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathOrderID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	o, err := h.orders.ReplaceOrder(r.Context(), appOrder.ReplaceOrderInput{
		OrderID: id,
		TableNo: req.TableNo,
		Lines:   req.lines(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromOrder(o))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathOrderID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	o, err := h.orders.MarkPaid(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromOrder(o))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathOrderID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromOrder(o))
}

func (h *Handler) handleListToday(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListToday(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromOrders(orders))
}

type topItemResponse struct {
	MenuItemID int64       `json:"menuItemId"`
	Name       string      `json:"name"`
	Qty        int         `json:"qty"`
	Revenue    json.Number `json:"revenue"`
}

type summaryResponse struct {
	From          string            `json:"from"`
	To            string            `json:"to"`
	TotalSales    json.Number       `json:"totalSales"`
	OrderCount    int               `json:"orderCount"`
	AvgOrderValue json.Number       `json:"avgOrderValue"`
	PaidCount     int               `json:"paidCount"`
	TopItems      []topItemResponse `json:"topItems"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s, err := h.reports.Execute(r.Context(), report.SummaryQuery{From: q.Get("from"), To: q.Get("to")})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := summaryResponse{
		From:          s.From.Format(domainOrder.DateLayout),
		To:            s.To.Format(domainOrder.DateLayout),
		TotalSales:    wire.Money(s.TotalSales),
		OrderCount:    s.OrderCount,
		AvgOrderValue: wire.Money(s.AvgOrderValue),
		PaidCount:     s.PaidCount,
		TopItems:      make([]topItemResponse, 0, len(s.TopItems)),
	}
	for _, it := range s.TopItems {
		resp.TopItems = append(resp.TopItems, topItemResponse{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Qty:        it.Quantity,
			Revenue:    wire.Money(it.Revenue),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func pathOrderID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domainOrder.NewValidation("order id must be a positive integer, got %q", raw)
	}
	return id, nil
}

// decodeJSON reads one JSON object; malformed bodies surface as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return domainOrder.NewValidation("request body is required")
		case errors.As(err, &typeErr):
			return domainOrder.NewValidation("field %q has the wrong type", typeErr.Field)
		default:
			return domainOrder.NewValidation("malformed JSON body: %v", err)
		}
	}
	if decoder.More() {
		return domainOrder.NewValidation("request body must contain a single JSON object")
	}
	return nil
}
