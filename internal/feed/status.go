package feed

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"foodadmin/internal/model"
)

// ErrUpdateInFlight rejects a second status change for the same order while
// the first is still unconfirmed.
var ErrUpdateInFlight = errors.New("a status update is already in flight for this order")

// StatusUpdater is the REST call behind a status change, implemented by
// *api.Client.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status model.Status) (*model.Order, error)
}

// StatusControl drives the per-order status selector. The chosen status is
// applied optimistically for responsiveness and rolled back if the update
// request fails; the merged list itself is only ever moved by the
// orderStatusUpdated event, which stays the source of truth.
type StatusControl struct {
	updater StatusUpdater
	logger  *zap.Logger

	mu      sync.Mutex
	orderID string
	current model.Status
	pending bool
}

func NewStatusControl(updater StatusUpdater, orderID string, current model.Status, logger *zap.Logger) *StatusControl {
	return &StatusControl{
		updater: updater,
		logger:  logger,
		orderID: orderID,
		current: current,
	}
}

// Current returns the locally displayed status.
func (s *StatusControl) Current() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Pending reports whether an update request is in flight.
func (s *StatusControl) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Set optimistically switches the displayed status, issues the update and
// rolls the display back if the server rejects it.
func (s *StatusControl) Set(ctx context.Context, status model.Status) error {
	if !status.Valid() {
		return &InvalidFilterError{Status: status}
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return ErrUpdateInFlight
	}
	prev := s.current
	s.current = status
	s.pending = true
	s.mu.Unlock()

	_, err := s.updater.UpdateOrderStatus(ctx, s.orderID, status)

	s.mu.Lock()
	s.pending = false
	if err != nil {
		s.current = prev
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("status update failed",
			zap.String("order_id", s.orderID),
			zap.String("status", status.String()),
			zap.Error(err))
		return err
	}

	s.logger.Info("status updated",
		zap.String("order_id", s.orderID),
		zap.String("status", status.String()))
	return nil
}
