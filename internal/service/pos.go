package service

import (
	"context"
	"errors"
	"fmt"

	"nexuspos/internal/checkout"
	"nexuspos/internal/domain"
	"nexuspos/internal/store"
)

func (s *Service) terminal(ctx context.Context, terminalID string) (context.Context, *checkout.Machine, error) {
	m, err := s.terminals.Terminal(terminalID)
	if err != nil {
		return ctx, nil, err
	}
	return s.log.WithTerminal(ctx, terminalID), m, nil
}

func (s *Service) Cart(ctx context.Context, terminalID string) (domain.CartView, error) {
	return s.terminals.View(ctx, terminalID)
}

// AddToCart rings up one unit of the product at its current stock level. Out-of-stock
// products and adds past the available stock leave the cart as it was.
func (s *Service) AddToCart(ctx context.Context, terminalID string, productID int64) (domain.CartView, error) {
	ctx, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartView{}, err
	}
	if _, err := m.Add(*product); err != nil {
		return domain.CartView{}, err
	}
	return s.terminals.View(ctx, terminalID)
}

// SetCartQuantity clamps quantity into [1, current stock]. Unknown lines are ignored.
func (s *Service) SetCartQuantity(ctx context.Context, terminalID string, productID int64, quantity int) (domain.CartView, error) {
	ctx, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.terminals.View(ctx, terminalID)
		}
		return domain.CartView{}, err
	}
	if _, err := m.SetQuantity(*product, quantity); err != nil {
		return domain.CartView{}, err
	}
	return s.terminals.View(ctx, terminalID)
}

func (s *Service) RemoveFromCart(ctx context.Context, terminalID string, productID int64) (domain.CartView, error) {
	ctx, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if _, err := m.Remove(productID); err != nil {
		return domain.CartView{}, err
	}
	return s.terminals.View(ctx, terminalID)
}

func (s *Service) ClearCart(ctx context.Context, terminalID string) (domain.CartView, error) {
	ctx, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := m.Clear(); err != nil {
		return domain.CartView{}, err
	}
	return s.terminals.View(ctx, terminalID)
}

func (s *Service) BeginCheckout(ctx context.Context, terminalID string) (domain.PaymentRequest, error) {
	ctx, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	return m.Begin(ctx)
}

func (s *Service) CancelCheckout(ctx context.Context, terminalID string) (domain.CartView, error) {
	ctx, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := m.Cancel(); err != nil {
		return domain.CartView{}, err
	}
	return s.terminals.View(ctx, terminalID)
}

// ConfirmCheckout takes payment for the pending order and commits it. The fiscal sync
// outcome, if any, is carried on the receipt.
func (s *Service) ConfirmCheckout(ctx context.Context, terminalID string, method domain.PaymentMethod) (domain.Receipt, error) {
	ctx, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.Receipt{}, err
	}
	return m.Confirm(ctx, method)
}

// PendingPayment returns the amount due on a terminal waiting for confirmation.
func (s *Service) PendingPayment(ctx context.Context, terminalID string) (domain.PaymentRequest, error) {
	_, m, err := s.terminal(ctx, terminalID)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	request, ok := m.Pending()
	if !ok {
		return domain.PaymentRequest{}, fmt.Errorf("%w: no checkout awaiting confirmation", store.ErrNotFound)
	}
	return request, nil
}

func (s *Service) Terminals() []string {
	return s.terminals.Terminals()
}
