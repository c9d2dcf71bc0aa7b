// Package pos keeps one checkout machine per POS terminal.
package pos

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"nexuspos/internal/checkout"
	"nexuspos/internal/domain"
	"nexuspos/internal/logger"
	"nexuspos/internal/pricing"
)

var (
	ErrInvalidTerminal  = errors.New("pos: invalid terminal id")
	ErrTooManyTerminals = errors.New("pos: terminal limit reached")
)

const DefaultMaxTerminals = 256

var terminalPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// SaleStore records committed sales against the stock ledger.
type SaleStore interface {
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
}

type Options struct {
	Settings    checkout.SettingsFunc
	Syncer      checkout.Syncer
	Sales       SaleStore
	Recorder    checkout.Recorder
	Logger      *logger.Logger
	SyncTimeout time.Duration
	// MaxTerminals caps live machines. Zero means DefaultMaxTerminals.
	MaxTerminals int
	// Cashier names whoever rang up the sale, read from the request context.
	Cashier func(ctx context.Context) string
	Now     func() time.Time
	NewID   func() string
}

type terminal struct {
	machine  *checkout.Machine
	lastUsed time.Time
}

type Registry struct {
	mu       sync.Mutex
	machines map[string]*terminal
	opts     Options
}

func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.MaxTerminals <= 0 {
		opts.MaxTerminals = DefaultMaxTerminals
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		machines: make(map[string]*terminal),
		opts:     opts,
	}
}

func ValidTerminalID(id string) bool {
	return terminalPattern.MatchString(id)
}

// Terminal returns the machine owned by terminalID, creating it on first use.
// At the cap the least recently used idle machine makes room; with none idle
// the call fails with ErrTooManyTerminals.
func (r *Registry) Terminal(terminalID string) (*checkout.Machine, error) {
	if !ValidTerminalID(terminalID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTerminal, terminalID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Now()
	if t, ok := r.machines[terminalID]; ok {
		t.lastUsed = now
		return t.machine, nil
	}
	if len(r.machines) >= r.opts.MaxTerminals && !r.evictIdleLocked() {
		return nil, fmt.Errorf("%w: %d live", ErrTooManyTerminals, len(r.machines))
	}
	m := checkout.New(checkout.Options{
		TerminalID:  terminalID,
		Settings:    r.opts.Settings,
		Syncer:      r.opts.Syncer,
		Committer:   saleCommitter{sales: r.opts.Sales, cashier: r.opts.Cashier},
		Recorder:    r.opts.Recorder,
		Logger:      r.opts.Logger,
		SyncTimeout: r.opts.SyncTimeout,
		Now:         r.opts.Now,
		NewID:       r.opts.NewID,
	})
	r.machines[terminalID] = &terminal{machine: m, lastUsed: now}
	return m, nil
}

// evictIdleLocked drops the least recently used machine that is building an
// empty cart. Caller holds r.mu.
func (r *Registry) evictIdleLocked() bool {
	var (
		victim string
		oldest time.Time
	)
	for id, t := range r.machines {
		if t.machine.State() != checkout.StateBuilding || len(t.machine.Items()) > 0 {
			continue
		}
		if victim == "" || t.lastUsed.Before(oldest) {
			victim, oldest = id, t.lastUsed
		}
	}
	if victim == "" {
		return false
	}
	delete(r.machines, victim)
	r.opts.Logger.InfoFields(context.Background(), "idle terminal evicted", map[string]any{"terminal_id": victim})
	return true
}

// Terminals lists the ids of terminals that have a machine, sorted.
func (r *Registry) Terminals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// View prices the terminal's cart at the current tax rate.
func (r *Registry) View(ctx context.Context, terminalID string) (domain.CartView, error) {
	m, err := r.Terminal(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	settings := domain.DefaultStoreSettings()
	if r.opts.Settings != nil {
		if settings, err = r.opts.Settings(ctx); err != nil {
			return domain.CartView{}, fmt.Errorf("load settings: %w", err)
		}
	}

	items := m.Items()
	priced := pricing.Compute(items, settings.TaxRatePercent)
	return domain.CartView{
		TerminalID: terminalID,
		State:      string(m.State()),
		Items:      items,
		Pricing:    priced,
		Display:    pricing.Display(priced, settings.Currency),
	}, nil
}

type saleCommitter struct {
	sales   SaleStore
	cashier func(ctx context.Context) string
}

func (c saleCommitter) CommitSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if c.sales == nil {
		return domain.Sale{}, errors.New("pos: no sale store configured")
	}
	if sale.Cashier == "" && c.cashier != nil {
		sale.Cashier = c.cashier(ctx)
	}
	recorded, err := c.sales.CommitSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	return *recorded, nil
}
