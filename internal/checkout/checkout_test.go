package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuspos/internal/domain"
	"nexuspos/internal/ledger"
)

type memoryCommitter struct {
	mu       sync.Mutex
	products []domain.Product
	sales    []domain.Sale
	err      error
}

func (c *memoryCommitter) CommitSale(_ context.Context, sale domain.Sale) (domain.Sale, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return domain.Sale{}, c.err
	}
	c.products = ledger.ApplySale(c.products, sale.Items)
	c.sales = append(c.sales, sale)
	return sale, nil
}

func (c *memoryCommitter) stock(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		if p.ID == id {
			return p.Stock
		}
	}
	return -1
}

// ctxCommitter fails once ctx is done, the way database/sql does.
type ctxCommitter struct {
	*memoryCommitter
}

func (c ctxCommitter) CommitSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sale{}, err
	}
	return c.memoryCommitter.CommitSale(ctx, sale)
}

func (c *memoryCommitter) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type sentLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *sentLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *sentLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

type syncFunc func(ctx context.Context, endpoint string, payload domain.FiscalPayload) (domain.FiscalResult, error)

func (f syncFunc) Sync(ctx context.Context, endpoint string, payload domain.FiscalPayload) (domain.FiscalResult, error) {
	return f(ctx, endpoint, payload)
}

type countingRecorder struct {
	mu       sync.Mutex
	commits  int
	outcomes []string
}

func (r *countingRecorder) ObserveCommit(domain.PaymentMethod, decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits++
}

func (r *countingRecorder) ObserveSync(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

var widget = domain.Product{
	ID:       1,
	Name:     "Widget",
	Price:    decimal.RequireFromString("10.00"),
	Category: domain.CategoryElectronics,
	Stock:    5,
}

func settingsWith(fiscal domain.FiscalizationSettings) SettingsFunc {
	return func(context.Context) (domain.StoreSettings, error) {
		s := domain.DefaultStoreSettings()
		s.Fiscalization = fiscal
		return s, nil
	}
}

var fiscalOn = domain.FiscalizationSettings{Enabled: true, EndpointURL: "https://fiscal.test/api", SyncOnSale: true}

func newMachine(t *testing.T, fiscal domain.FiscalizationSettings, syncer Syncer) (*Machine, *memoryCommitter, *countingRecorder) {
	t.Helper()
	committer := &memoryCommitter{products: []domain.Product{widget}}
	recorder := &countingRecorder{}
	m := New(Options{
		TerminalID:  "front-1",
		Settings:    settingsWith(fiscal),
		Syncer:      syncer,
		Committer:   committer,
		Recorder:    recorder,
		SyncTimeout: 50 * time.Millisecond,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		NewID:       func() string { return "TXN-1" },
	})
	return m, committer, recorder
}

func ringUp(t *testing.T, m *Machine, qty int) {
	t.Helper()
	for i := 0; i < qty; i++ {
		added, err := m.Add(widget)
		require.NoError(t, err)
		require.True(t, added)
	}
}

func TestBeginRejectsEmptyCart(t *testing.T) {
	m, _, _ := newMachine(t, domain.FiscalizationSettings{}, nil)
	_, err := m.Begin(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, StateBuilding, m.State())
}

func TestBeginPricesCart(t *testing.T) {
	m, _, _ := newMachine(t, domain.FiscalizationSettings{}, nil)
	ringUp(t, m, 2)

	request, err := m.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, m.State())
	assert.True(t, request.AmountDue.Equal(decimal.RequireFromString("21.60")), request.AmountDue.String())
	assert.True(t, request.Pricing.Tax.Equal(decimal.RequireFromString("1.60")))
	assert.Equal(t, []domain.PaymentMethod{domain.PaymentCard, domain.PaymentCash}, request.Methods)

	_, err = m.Begin(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmWithoutFiscalizationCommitsImmediately(t *testing.T) {
	called := false
	syncer := syncFunc(func(context.Context, string, domain.FiscalPayload) (domain.FiscalResult, error) {
		called = true
		return domain.FiscalResult{Success: true}, nil
	})
	m, committer, recorder := newMachine(t, domain.FiscalizationSettings{Enabled: false, SyncOnSale: true}, syncer)
	ringUp(t, m, 2)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	receipt, err := m.Confirm(context.Background(), domain.PaymentCash)
	require.NoError(t, err)

	assert.False(t, called)
	assert.Nil(t, receipt.FiscalSync)
	assert.Equal(t, 3, committer.stock(1))
	assert.Empty(t, m.Items())
	assert.Equal(t, StateBuilding, m.State())
	assert.Equal(t, "TXN-1", receipt.Sale.ID)
	assert.Equal(t, "front-1", receipt.Sale.TerminalID)
	assert.Equal(t, "$21.60", receipt.Display.Total)
	assert.Equal(t, 1, recorder.commits)
	assert.Empty(t, recorder.outcomes)
}

func TestConfirmSkipsSyncWhenSyncOnSaleDisabled(t *testing.T) {
	called := false
	syncer := syncFunc(func(context.Context, string, domain.FiscalPayload) (domain.FiscalResult, error) {
		called = true
		return domain.FiscalResult{Success: true}, nil
	})
	m, _, _ := newMachine(t, domain.FiscalizationSettings{Enabled: true, EndpointURL: "https://x", SyncOnSale: false}, syncer)
	ringUp(t, m, 1)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)
	_, err = m.Confirm(context.Background(), domain.PaymentCard)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestConfirmSendsPayloadAndReportsSuccess(t *testing.T) {
	var got domain.FiscalPayload
	var gotEndpoint string
	syncer := syncFunc(func(_ context.Context, endpoint string, payload domain.FiscalPayload) (domain.FiscalResult, error) {
		gotEndpoint = endpoint
		got = payload
		return domain.FiscalResult{Success: true, Message: "Transaction synced successfully."}, nil
	})
	m, committer, recorder := newMachine(t, fiscalOn, syncer)
	ringUp(t, m, 2)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	receipt, err := m.Confirm(context.Background(), domain.PaymentCard)
	require.NoError(t, err)

	assert.Equal(t, "https://fiscal.test/api", gotEndpoint)
	assert.Equal(t, "TXN-1", got.TransactionID)
	assert.Equal(t, "2026-03-01T12:00:00Z", got.Timestamp)
	assert.Equal(t, domain.PaymentCard, got.PaymentMethod)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("21.60")))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)

	require.NotNil(t, receipt.FiscalSync)
	assert.True(t, receipt.FiscalSync.Success)
	assert.Equal(t, 3, committer.stock(1))
	assert.Equal(t, []string{SyncSuccess}, recorder.outcomes)
	require.Len(t, committer.sales, 1)
	assert.Equal(t, receipt.FiscalSync, committer.sales[0].FiscalSync)
}

func TestConfirmCommitsWhenSyncPanics(t *testing.T) {
	syncer := syncFunc(func(context.Context, string, domain.FiscalPayload) (domain.FiscalResult, error) {
		panic("printer on fire")
	})
	m, committer, recorder := newMachine(t, fiscalOn, syncer)
	ringUp(t, m, 2)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	receipt, err := m.Confirm(context.Background(), domain.PaymentCard)
	require.NoError(t, err)

	require.NotNil(t, receipt.FiscalSync)
	assert.False(t, receipt.FiscalSync.Success)
	assert.Equal(t, UnknownSyncFailure, receipt.FiscalSync.Message)
	assert.Equal(t, 3, committer.stock(1))
	assert.Empty(t, m.Items())
	assert.Equal(t, StateBuilding, m.State())
	assert.Equal(t, []string{SyncPanic}, recorder.outcomes)
}

func TestConfirmCommitsWhenSyncErrors(t *testing.T) {
	syncer := syncFunc(func(context.Context, string, domain.FiscalPayload) (domain.FiscalResult, error) {
		return domain.FiscalResult{}, errors.New("connection refused")
	})
	m, committer, recorder := newMachine(t, fiscalOn, syncer)
	ringUp(t, m, 1)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	receipt, err := m.Confirm(context.Background(), domain.PaymentCash)
	require.NoError(t, err)
	assert.Equal(t, "Sync failed: connection refused", receipt.FiscalSync.Message)
	assert.Equal(t, 4, committer.stock(1))
	assert.Equal(t, []string{SyncError}, recorder.outcomes)
}

func TestConfirmReportsRemoteFailure(t *testing.T) {
	syncer := syncFunc(func(context.Context, string, domain.FiscalPayload) (domain.FiscalResult, error) {
		return domain.FiscalResult{Success: false}, nil
	})
	m, _, recorder := newMachine(t, fiscalOn, syncer)
	ringUp(t, m, 1)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	receipt, err := m.Confirm(context.Background(), domain.PaymentCash)
	require.NoError(t, err)
	assert.Equal(t, UnknownSyncFailure, receipt.FiscalSync.Message)
	assert.Equal(t, []string{SyncFailure}, recorder.outcomes)
}

func TestConfirmTimesOutStuckSync(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	syncer := syncFunc(func(context.Context, string, domain.FiscalPayload) (domain.FiscalResult, error) {
		<-release
		return domain.FiscalResult{Success: true}, nil
	})
	m, committer, recorder := newMachine(t, fiscalOn, syncer)
	ringUp(t, m, 1)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	receipt, err := m.Confirm(context.Background(), domain.PaymentCard)
	require.NoError(t, err)
	assert.False(t, receipt.FiscalSync.Success)
	assert.Contains(t, receipt.FiscalSync.Message, "Sync failed:")
	assert.Equal(t, 4, committer.stock(1))
	assert.Equal(t, []string{SyncTimeout}, recorder.outcomes)
}

func TestConfirmRejectsUnsupportedMethod(t *testing.T) {
	m, committer, _ := newMachine(t, domain.FiscalizationSettings{}, nil)
	ringUp(t, m, 1)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), domain.PaymentMethod("crypto"))
	assert.ErrorIs(t, err, ErrUnsupportedPaymentMethod)
	assert.Equal(t, StateAwaitingConfirmation, m.State())
	assert.Len(t, m.Items(), 1)
	assert.Equal(t, 5, committer.stock(1))
}

func TestConfirmRequiresPendingCheckout(t *testing.T) {
	m, _, _ := newMachine(t, domain.FiscalizationSettings{}, nil)
	ringUp(t, m, 1)
	_, err := m.Confirm(context.Background(), domain.PaymentCash)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCommitFailureKeepsOrder(t *testing.T) {
	m, committer, _ := newMachine(t, domain.FiscalizationSettings{}, nil)
	committer.err = errors.New("disk full")
	ringUp(t, m, 2)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), domain.PaymentCash)
	require.Error(t, err)
	assert.Equal(t, StateAwaitingConfirmation, m.State())
	assert.Len(t, m.Items(), 1)
	_, pending := m.Pending()
	assert.True(t, pending)
}

func TestCancelLeavesCartUntouched(t *testing.T) {
	m, _, _ := newMachine(t, domain.FiscalizationSettings{}, nil)
	require.NoError(t, m.Cancel())
	assert.Equal(t, StateBuilding, m.State())

	ringUp(t, m, 3)
	before := m.Items()
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Cancel())
	assert.Equal(t, StateBuilding, m.State())
	assert.Equal(t, before, m.Items())
	_, pending := m.Pending()
	assert.False(t, pending)
}

func TestCartLockedOutsideBuilding(t *testing.T) {
	m, _, _ := newMachine(t, domain.FiscalizationSettings{}, nil)
	ringUp(t, m, 1)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	_, err = m.Add(widget)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = m.SetQuantity(widget, 3)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = m.Remove(widget.ID)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.ErrorIs(t, m.Clear(), ErrCheckoutInProgress)
	assert.Equal(t, 1, m.Items()[0].Quantity)
}

func TestSecondCheckoutRejectedWhileSyncing(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	syncer := syncFunc(func(context.Context, string, domain.FiscalPayload) (domain.FiscalResult, error) {
		close(entered)
		<-release
		return domain.FiscalResult{Success: true, Message: "ok"}, nil
	})
	committer := &memoryCommitter{products: []domain.Product{widget}}
	m := New(Options{
		Settings:    settingsWith(fiscalOn),
		Syncer:      syncer,
		Committer:   committer,
		SyncTimeout: 5 * time.Second,
	})
	ringUp(t, m, 1)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Confirm(context.Background(), domain.PaymentCard)
		done <- err
	}()
	<-entered

	assert.Equal(t, StateSyncing, m.State())
	_, err = m.Begin(context.Background())
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = m.Confirm(context.Background(), domain.PaymentCard)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.ErrorIs(t, m.Cancel(), ErrCheckoutInProgress)
	_, err = m.Add(widget)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateBuilding, m.State())
	assert.Equal(t, 4, committer.stock(1))
}

func TestConfirmCommitsWhenCallerGoesAwayDuringSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sent := &sentLog{}
	syncer := syncFunc(func(syncCtx context.Context, _ string, payload domain.FiscalPayload) (domain.FiscalResult, error) {
		sent.add(payload.TransactionID)
		cancel()
		<-syncCtx.Done()
		return domain.FiscalResult{}, syncCtx.Err()
	})
	committer := &memoryCommitter{products: []domain.Product{widget}}
	recorder := &countingRecorder{}
	m := New(Options{
		Settings:    settingsWith(fiscalOn),
		Syncer:      syncer,
		Committer:   ctxCommitter{committer},
		Recorder:    recorder,
		SyncTimeout: 5 * time.Second,
	})
	ringUp(t, m, 1)
	_, err := m.Begin(ctx)
	require.NoError(t, err)

	receipt, err := m.Confirm(ctx, domain.PaymentCard)
	require.NoError(t, err)

	assert.Equal(t, StateBuilding, m.State())
	assert.Equal(t, 4, committer.stock(1))
	require.Len(t, committer.sales, 1)
	assert.Equal(t, []string{committer.sales[0].ID}, sent.all())
	require.NotNil(t, receipt.FiscalSync)
	assert.False(t, receipt.FiscalSync.Success)
	assert.NotContains(t, receipt.FiscalSync.Message, "within")
	assert.Equal(t, []string{SyncCanceled}, recorder.outcomes)
}

func TestCommitFailureAfterSyncSendsPayloadOnce(t *testing.T) {
	sent := &sentLog{}
	syncer := syncFunc(func(_ context.Context, _ string, payload domain.FiscalPayload) (domain.FiscalResult, error) {
		sent.add(payload.TransactionID)
		return domain.FiscalResult{Success: true, Message: "Transaction synced successfully."}, nil
	})
	committer := &memoryCommitter{products: []domain.Product{widget}}
	ids := 0
	m := New(Options{
		Settings:    settingsWith(fiscalOn),
		Syncer:      syncer,
		Committer:   committer,
		SyncTimeout: time.Second,
		NewID: func() string {
			ids++
			return fmt.Sprintf("TXN-%d", ids)
		},
	})
	ringUp(t, m, 2)
	_, err := m.Begin(context.Background())
	require.NoError(t, err)

	committer.setErr(errors.New("connection reset"))
	_, err = m.Confirm(context.Background(), domain.PaymentCard)
	require.Error(t, err)
	assert.Equal(t, StateAwaitingConfirmation, m.State())
	assert.Equal(t, 5, committer.stock(1))

	assert.ErrorIs(t, m.Cancel(), ErrFiscalizedSalePending)
	_, err = m.Confirm(context.Background(), domain.PaymentCash)
	assert.ErrorIs(t, err, ErrFiscalizedSalePending)

	committer.setErr(nil)
	receipt, err := m.Confirm(context.Background(), domain.PaymentCard)
	require.NoError(t, err)

	assert.Equal(t, []string{"TXN-1"}, sent.all())
	assert.Equal(t, 1, ids)
	assert.Equal(t, "TXN-1", receipt.Sale.ID)
	require.NotNil(t, receipt.FiscalSync)
	assert.True(t, receipt.FiscalSync.Success)
	assert.Equal(t, 3, committer.stock(1))
	assert.Equal(t, StateBuilding, m.State())
	assert.Empty(t, m.Items())

	// the next order syncs normally
	ringUp(t, m, 1)
	_, err = m.Begin(context.Background())
	require.NoError(t, err)
	_, err = m.Confirm(context.Background(), domain.PaymentCash)
	require.NoError(t, err)
	assert.Equal(t, []string{"TXN-1", "TXN-2"}, sent.all())
}

func TestConfirmRecordsRateUsedAtBegin(t *testing.T) {
	var mu sync.Mutex
	rate := decimal.NewFromInt(8)
	settings := func(context.Context) (domain.StoreSettings, error) {
		mu.Lock()
		defer mu.Unlock()
		s := domain.DefaultStoreSettings()
		s.TaxRatePercent = rate
		return s, nil
	}
	committer := &memoryCommitter{products: []domain.Product{widget}}
	m := New(Options{Settings: settings, Committer: committer})
	ringUp(t, m, 1)
	request, err := m.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8", request.TaxRatePercent.String())

	mu.Lock()
	rate = decimal.NewFromInt(20)
	mu.Unlock()

	receipt, err := m.Confirm(context.Background(), domain.PaymentCash)
	require.NoError(t, err)
	sale := receipt.Sale
	assert.Equal(t, "8", sale.TaxRatePercent.String())
	assert.True(t, sale.Tax.Equal(sale.Subtotal.Mul(sale.TaxRatePercent).Div(decimal.NewFromInt(100))))
	assert.Equal(t, "10.8", sale.Total.String())
}
