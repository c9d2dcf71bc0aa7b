// Package checkout coordinates one POS terminal's order from ringing up to commit.
//
// The machine owns the terminal's cart and moves through
//
//	Building -> AwaitingConfirmation -> Syncing (optional) -> Committed -> Building
//
// A fiscal sync never blocks the commit: whatever the collaborator does (fails,
// errors, panics or hangs past the timeout) is reported on the receipt and the sale
// is still applied to the stock ledger.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"nexuspos/internal/cart"
	"nexuspos/internal/domain"
	"nexuspos/internal/logger"
	"nexuspos/internal/pricing"
	"nexuspos/internal/xid"
)

type State string

const (
	StateBuilding             State = "building"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateSyncing              State = "syncing"
	StateCommitted            State = "committed"
)

// Sync outcomes reported to the Recorder.
const (
	SyncSuccess = "success"
	SyncFailure = "failure"
	SyncError   = "error"
	SyncPanic   = "panic"
	SyncTimeout = "timeout"
	// SyncCanceled means the caller went away before the endpoint answered.
	SyncCanceled = "canceled"
)

const (
	DefaultSyncTimeout = 10 * time.Second

	UnknownSyncFailure = "An unknown error occurred during fiscalization."
)

var (
	ErrEmptyCart                = errors.New("checkout: cart is empty")
	ErrInvalidTransition        = errors.New("checkout: invalid state transition")
	ErrCheckoutInProgress       = errors.New("checkout: checkout in progress")
	ErrUnsupportedPaymentMethod = errors.New("checkout: unsupported payment method")
	// ErrFiscalizedSalePending is returned while a sale whose payload was already sent
	// is waiting to be committed.
	ErrFiscalizedSalePending = errors.New("checkout: fiscalized sale awaiting commit")
)

// Syncer pushes a committed sale to the fiscal endpoint.
type Syncer interface {
	Sync(ctx context.Context, endpoint string, payload domain.FiscalPayload) (domain.FiscalResult, error)
}

// Committer applies a sale to the stock ledger and records it.
type Committer interface {
	CommitSale(ctx context.Context, sale domain.Sale) (domain.Sale, error)
}

// SettingsFunc supplies the current store settings.
type SettingsFunc func(ctx context.Context) (domain.StoreSettings, error)

type Recorder interface {
	ObserveCommit(method domain.PaymentMethod, total decimal.Decimal)
	ObserveSync(outcome string, elapsed time.Duration)
}

type Options struct {
	TerminalID  string
	Settings    SettingsFunc
	Syncer      Syncer
	Committer   Committer
	Recorder    Recorder
	Logger      *logger.Logger
	SyncTimeout time.Duration
	Now         func() time.Time
	NewID       func() string
}

type Machine struct {
	mu      sync.Mutex
	state   State
	cart    *cart.Cart
	pending *domain.PaymentRequest
	// fiscalized is a synced sale whose commit failed.
	fiscalized *domain.Sale

	terminalID  string
	settings    SettingsFunc
	syncer      Syncer
	committer   Committer
	recorder    Recorder
	log         *logger.Logger
	syncTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

func New(opts Options) *Machine {
	m := &Machine{
		state:       StateBuilding,
		cart:        cart.New(),
		terminalID:  opts.TerminalID,
		settings:    opts.Settings,
		syncer:      opts.Syncer,
		committer:   opts.Committer,
		recorder:    opts.Recorder,
		log:         opts.Logger,
		syncTimeout: opts.SyncTimeout,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if m.settings == nil {
		m.settings = func(context.Context) (domain.StoreSettings, error) {
			return domain.DefaultStoreSettings(), nil
		}
	}
	if m.log == nil {
		m.log = logger.Nop()
	}
	if m.syncTimeout <= 0 {
		m.syncTimeout = DefaultSyncTimeout
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = func() string { return xid.New("TXN") }
	}
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Items() []domain.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.Items()
}

// Pending returns the payment request awaiting confirmation, if any.
func (m *Machine) Pending() (domain.PaymentRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return domain.PaymentRequest{}, false
	}
	return *m.pending, true
}

// Add rings up one unit of product. Out-of-stock products and increments beyond stock
// are ignored and reported as false.
func (m *Machine) Add(product domain.Product) (bool, error) {
	return m.mutate(func(c *cart.Cart) bool { return c.Add(product) })
}

// SetQuantity clamps the line of product to its current stock.
func (m *Machine) SetQuantity(product domain.Product, quantity int) (bool, error) {
	return m.mutate(func(c *cart.Cart) bool { return c.SetQuantity(product, quantity) })
}

func (m *Machine) Remove(productID int64) (bool, error) {
	return m.mutate(func(c *cart.Cart) bool { return c.Remove(productID) })
}

// Clear empties the cart of an order that has not entered checkout.
func (m *Machine) Clear() error {
	_, err := m.mutate(func(c *cart.Cart) bool {
		c.Clear()
		return true
	})
	return err
}

func (m *Machine) mutate(fn func(*cart.Cart) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateBuilding {
		return false, ErrCheckoutInProgress
	}
	return fn(m.cart), nil
}

// Begin moves a non-empty cart into AwaitingConfirmation and returns the amount due
// priced at the current tax rate.
func (m *Machine) Begin(ctx context.Context) (domain.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateBuilding:
	case StateSyncing:
		return domain.PaymentRequest{}, ErrCheckoutInProgress
	default:
		return domain.PaymentRequest{}, fmt.Errorf("%w: begin from %s", ErrInvalidTransition, m.state)
	}
	if m.cart.IsEmpty() {
		return domain.PaymentRequest{}, ErrEmptyCart
	}

	settings, err := m.settings(ctx)
	if err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("load settings: %w", err)
	}
	priced := pricing.Compute(m.cart.Items(), settings.TaxRatePercent)
	request := domain.PaymentRequest{
		AmountDue:      priced.Total,
		Pricing:        priced,
		TaxRatePercent: settings.TaxRatePercent,
		Methods:        []domain.PaymentMethod{domain.PaymentCard, domain.PaymentCash},
	}
	m.pending = &request
	m.state = StateAwaitingConfirmation
	return request, nil
}

// Cancel abandons a pending confirmation and leaves the cart as it was. Cancelling
// while Building is a no-op. A sale already sent to the fiscal endpoint cannot be
// cancelled.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateBuilding:
		return nil
	case StateAwaitingConfirmation:
		if m.fiscalized != nil {
			return ErrFiscalizedSalePending
		}
		m.pending = nil
		m.state = StateBuilding
		return nil
	default:
		return ErrCheckoutInProgress
	}
}

// Confirm takes payment by method, runs the fiscal sync when the store has it enabled
// for sales, and commits the sale. The returned receipt carries the sync outcome.
//
// The commit is detached from ctx's cancellation. If it still fails after a sync, the
// fiscalized sale is kept and the next Confirm commits that same sale without sending
// the payload again.
func (m *Machine) Confirm(ctx context.Context, method domain.PaymentMethod) (domain.Receipt, error) {
	m.mu.Lock()
	switch m.state {
	case StateAwaitingConfirmation:
	case StateSyncing:
		m.mu.Unlock()
		return domain.Receipt{}, ErrCheckoutInProgress
	default:
		state := m.state
		m.mu.Unlock()
		return domain.Receipt{}, fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, state)
	}
	if !method.Valid() {
		m.mu.Unlock()
		return domain.Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, method)
	}
	settings, err := m.settings(ctx)
	if err != nil {
		m.mu.Unlock()
		return domain.Receipt{}, fmt.Errorf("load settings: %w", err)
	}

	if m.fiscalized != nil {
		defer m.mu.Unlock()
		if method != m.fiscalized.PaymentMethod {
			return domain.Receipt{}, fmt.Errorf("%w: sale %s was paid by %s", ErrFiscalizedSalePending, m.fiscalized.ID, m.fiscalized.PaymentMethod)
		}
		return m.commit(ctx, *m.fiscalized, settings.Currency)
	}

	priced := m.pending.Pricing
	sale := domain.Sale{
		ID:             m.newID(),
		TerminalID:     m.terminalID,
		PaymentMethod:  method,
		TaxRatePercent: m.pending.TaxRatePercent,
		Subtotal:       priced.Subtotal,
		Tax:            priced.Tax,
		Total:          priced.Total,
		Items:          m.cart.Items(),
		CreatedAt:      m.now(),
	}

	if settings.Fiscalization.SyncEnabled() {
		m.state = StateSyncing
		m.mu.Unlock()

		result := m.sync(ctx, settings.Fiscalization.EndpointURL, fiscalPayload(sale))
		sale.FiscalSync = &result

		m.mu.Lock()
		m.fiscalized = &sale
	}
	defer m.mu.Unlock()

	return m.commit(ctx, sale, settings.Currency)
}

// commit must be called with m.mu held.
func (m *Machine) commit(ctx context.Context, sale domain.Sale, currency domain.Currency) (domain.Receipt, error) {
	committed, err := m.committer.CommitSale(context.WithoutCancel(ctx), sale)
	if err != nil {
		m.state = StateAwaitingConfirmation
		return domain.Receipt{}, fmt.Errorf("commit sale: %w", err)
	}

	m.cart.Clear()
	m.pending = nil
	m.fiscalized = nil
	m.state = StateBuilding

	if m.recorder != nil {
		m.recorder.ObserveCommit(committed.PaymentMethod, committed.Total)
	}
	m.log.InfoFields(ctx, "checkout committed", map[string]any{
		"sale_id": committed.ID,
		"method":  string(committed.PaymentMethod),
		"total":   committed.Total.String(),
		"items":   len(committed.Items),
	})

	priced := domain.Pricing{Subtotal: committed.Subtotal, Tax: committed.Tax, Total: committed.Total}
	return domain.Receipt{
		Sale:       committed,
		Display:    pricing.Display(priced, currency),
		FiscalSync: committed.FiscalSync,
	}, nil
}

type syncOutcome struct {
	result domain.FiscalResult
	err    error
	panic  any
}

func (m *Machine) sync(ctx context.Context, endpoint string, payload domain.FiscalPayload) domain.FiscalResult {
	syncCtx, cancel := context.WithTimeout(ctx, m.syncTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan syncOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- syncOutcome{panic: r}
			}
		}()
		result, err := m.syncer.Sync(syncCtx, endpoint, payload)
		done <- syncOutcome{result: result, err: err}
	}()

	var (
		result  domain.FiscalResult
		outcome string
	)
	select {
	case o := <-done:
		result, outcome = interpret(o)
	case <-syncCtx.Done():
		if ctx.Err() != nil {
			outcome = SyncCanceled
			result = domain.FiscalResult{Message: "Sync failed: request cancelled before the fiscal endpoint answered"}
		} else {
			outcome = SyncTimeout
			result = domain.FiscalResult{Message: fmt.Sprintf("Sync failed: no response from fiscal endpoint within %s", m.syncTimeout)}
		}
	}

	if m.recorder != nil {
		m.recorder.ObserveSync(outcome, time.Since(started))
	}
	fields := map[string]any{"transaction_id": payload.TransactionID, "outcome": outcome, "message": result.Message}
	if result.Success {
		m.log.InfoFields(ctx, "fiscal sync finished", fields)
	} else {
		m.log.WarnFields(ctx, "fiscal sync failed", fields)
	}
	return result
}

func interpret(o syncOutcome) (domain.FiscalResult, string) {
	switch {
	case o.panic != nil:
		return domain.FiscalResult{Message: UnknownSyncFailure}, SyncPanic
	case errors.Is(o.err, context.Canceled):
		return domain.FiscalResult{Message: "Sync failed: " + o.err.Error()}, SyncCanceled
	case errors.Is(o.err, context.DeadlineExceeded):
		return domain.FiscalResult{Message: "Sync failed: " + o.err.Error()}, SyncTimeout
	case o.err != nil:
		return domain.FiscalResult{Message: "Sync failed: " + o.err.Error()}, SyncError
	case o.result.Success:
		return o.result, SyncSuccess
	}
	if o.result.Message == "" {
		o.result.Message = UnknownSyncFailure
	}
	return o.result, SyncFailure
}

func fiscalPayload(sale domain.Sale) domain.FiscalPayload {
	items := make([]domain.FiscalItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, domain.NewFiscalItem(item))
	}
	return domain.FiscalPayload{
		TransactionID: sale.ID,
		Timestamp:     sale.CreatedAt.Format(time.RFC3339),
		Items:         items,
		Subtotal:      sale.Subtotal,
		Tax:           sale.Tax,
		Total:         sale.Total,
		PaymentMethod: sale.PaymentMethod,
	}
}
