package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"nexuspos/internal/checkout"
	"nexuspos/internal/domain"
	"nexuspos/internal/logger"
	"nexuspos/internal/pos"
	"nexuspos/internal/store"
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Describer writes product marketing copy. It never fails; failures come back as text.
type Describer interface {
	Generate(ctx context.Context, productName string) string
}

type Options struct {
	Repo        store.Repository
	Describer   Describer
	Syncer      checkout.Syncer
	Recorder    checkout.Recorder
	Logger      *logger.Logger
	SyncTimeout time.Duration
	// MaxTerminals caps live checkout machines; see pos.Options.
	MaxTerminals int
	Now          func() time.Time
	NewID        func() string
}

type Service struct {
	repo      store.Repository
	describer Describer
	terminals *pos.Registry
	log       *logger.Logger
	now       func() time.Time

	// settingsMu serialises read-modify-write of the settings sections.
	settingsMu sync.Mutex
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	s := &Service{
		repo:      opts.Repo,
		describer: opts.Describer,
		log:       opts.Logger,
		now:       opts.Now,
	}
	s.terminals = pos.NewRegistry(pos.Options{
		Settings:     opts.Repo.GetSettings,
		Syncer:       opts.Syncer,
		Sales:        opts.Repo,
		Recorder:     opts.Recorder,
		Logger:       opts.Logger,
		SyncTimeout:  opts.SyncTimeout,
		MaxTerminals: opts.MaxTerminals,
		Cashier:      cashierName,
		Now:          opts.Now,
		NewID:        opts.NewID,
	})
	return s
}

func cashierName(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return actor.Email
}

// requireRole passes when the actor in ctx holds one of roles. Admin always passes.
func requireRole(ctx context.Context, roles ...domain.Role) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrUnauthenticated
	}
	if actor.Role == domain.RoleAdmin {
		return actor, nil
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: %s role cannot perform this action", ErrForbidden, actor.Role)
}

func (s *Service) audit(ctx context.Context, action string, fields map[string]any) {
	if actor, ok := ActorFromContext(ctx); ok {
		fields["actor"] = actor.Email
	}
	fields["action"] = action
	s.log.InfoFields(ctx, "audit", fields)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}
