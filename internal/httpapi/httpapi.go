package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nexuspos/internal/checkout"
	"nexuspos/internal/domain"
	"nexuspos/internal/logger"
	"nexuspos/internal/metrics"
	"nexuspos/internal/pos"
	"nexuspos/internal/service"
	"nexuspos/internal/store"
	"nexuspos/internal/xid"
)

type Options struct {
	Service       *service.Service
	Auth          *AuthManager
	AllowedOrigin string
	Logger        *logger.Logger
	Metrics       *metrics.HTTPMetrics
	// Gatherer backs /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	log           *logger.Logger
	metrics       *metrics.HTTPMetrics
	gatherer      prometheus.Gatherer
	loginLimiter  *attemptLimiter
}

func New(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &API{
		service:       opts.Service,
		auth:          opts.Auth,
		allowedOrigin: opts.AllowedOrigin,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		gatherer:      opts.Gatherer,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(a.withMiddleware)

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/auth/me", a.handleMe)
			r.Get("/categories", a.handleCategories)

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Get("/{productID}", a.handleGetProduct)
				r.Group(func(r chi.Router) {
					r.Use(requireRoles(domain.RoleManager))
					r.Post("/", a.handleCreateProduct)
					r.Post("/describe", a.handleDescribeProduct)
					r.Put("/{productID}", a.handleUpdateProduct)
					r.Delete("/{productID}", a.handleDeleteProduct)
					r.Put("/{productID}/stock", a.handleAdjustStock)
				})
			})

			r.Get("/terminals", a.handleListTerminals)
			r.Route("/terminals/{terminalID}", func(r chi.Router) {
				r.Get("/cart", a.handleCart)
				r.Delete("/cart", a.handleClearCart)
				r.Post("/cart/items", a.handleAddCartItem)
				r.Put("/cart/items/{productID}", a.handleSetCartQuantity)
				r.Delete("/cart/items/{productID}", a.handleRemoveCartItem)
				r.Get("/checkout", a.handlePendingCheckout)
				r.Post("/checkout", a.handleBeginCheckout)
				r.Post("/checkout/confirm", a.handleConfirmCheckout)
				r.Post("/checkout/cancel", a.handleCancelCheckout)
			})

			r.Get("/sales", a.handleListSales)

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", a.handleListCustomers)
				r.Post("/", a.handleCreateCustomer)
				r.Get("/{id}", a.handleGetCustomer)
				r.Put("/{id}", a.handleUpdateCustomer)
				r.With(requireRoles(domain.RoleManager)).Delete("/{id}", a.handleDeleteCustomer)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRoles(domain.RoleManager))

				r.Get("/reports/sales-summary", a.handleSalesSummary)

				r.Route("/suppliers", func(r chi.Router) {
					r.Get("/", a.handleListSuppliers)
					r.Post("/", a.handleCreateSupplier)
					r.Get("/{id}", a.handleGetSupplier)
					r.Put("/{id}", a.handleUpdateSupplier)
					r.Delete("/{id}", a.handleDeleteSupplier)
				})

				r.Route("/departments", func(r chi.Router) {
					r.Get("/", a.handleListDepartments)
					r.Post("/", a.handleCreateDepartment)
					r.Put("/{id}", a.handleUpdateDepartment)
					r.Delete("/{id}", a.handleDeleteDepartment)
				})

				r.Route("/purchase-orders", func(r chi.Router) {
					r.Get("/", a.handleListPurchaseOrders)
					r.Post("/", a.handleCreatePurchaseOrder)
					r.Get("/{id}", a.handleGetPurchaseOrder)
					r.Put("/{id}", a.handleUpdatePurchaseOrder)
					r.Delete("/{id}", a.handleDeletePurchaseOrder)
					r.Post("/{id}/receive", a.handleReceivePurchaseOrder)
				})
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", a.handleGetSettings)
				r.Group(func(r chi.Router) {
					r.Use(requireRoles())
					r.Put("/business", a.handleUpdateBusiness)
					r.Put("/tax", a.handleUpdateTaxRate)
					r.Put("/currency", a.handleUpdateCurrency)
					r.Put("/fiscalization", a.handleUpdateFiscalization)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(requireRoles())
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Put("/{id}", a.handleUpdateUser)
				r.Delete("/{id}", a.handleDeleteUser)
			})
		})
	})

	return r
}

// requestID keeps a caller-supplied X-Request-ID or mints one, and stores it where
// chi's middleware.GetReqID finds it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = xid.Request()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = a.log.WithUser(ctx, actor.Email, string(actor.Role))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles admits the listed roles. Admin is always admitted, so requireRoles()
// means admin only.
func requireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			if !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role domain.Role, allowed []domain.Role) bool {
	if role == domain.RoleAdmin {
		return true
	}
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ctx := a.log.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		r = r.WithContext(ctx)

		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(startedAt)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		a.metrics.ObserveRequest(r.Method, route, status, elapsed)
		a.log.InfoFields(ctx, "http request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
		})
	})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

type validationError struct {
	details map[string]string
}

func (e *validationError) Error() string {
	return "validation failed"
}

func decodeJSON(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dest); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			details := make(map[string]string, len(errs))
			for _, fieldErr := range errs {
				details[fieldErr.Field()] = validationMessage(fieldErr)
			}
			return &validationError{details: details}
		}
		return err
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", store.ErrInvalidInput, name)
	}
	return id, nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeBound accepts RFC3339 or a bare date. A bare date used as an upper bound
// covers the whole day.
func parseTimeBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", store.ErrInvalidInput, raw)
	}
	if upper {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, pos.ErrInvalidTerminal),
		errors.Is(err, checkout.ErrUnsupportedPaymentMethod):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInvalidState),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrCheckoutInProgress),
		errors.Is(err, checkout.ErrFiscalizedSalePending):
		return http.StatusConflict
	case errors.Is(err, pos.ErrTooManyTerminals):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.log.Error(r.Context(), "request failed", err)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are meant for the client.
	body := map[string]any{"error": err.Error()}
	if status >= 500 {
		body["error"] = "internal server error"
	}
	var verr *validationError
	if errors.As(err, &verr) {
		body["details"] = verr.details
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
