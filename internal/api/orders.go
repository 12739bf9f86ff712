package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"foodadmin/internal/metrics"
	"foodadmin/internal/model"
)

// AdminOrders fetches the snapshot of orders currently in the given status,
// newest first.
func (c *Client) AdminOrders(ctx context.Context, status model.Status) ([]model.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status filter %q", status)
	}

	metrics.SnapshotFetchesTotal.Inc()

	var orders []model.Order
	path := "/orders/admin?status=" + url.QueryEscape(status.String())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &orders); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("snapshot_fetch").Inc()
		return nil, err
	}
	return orders, nil
}

// CountStatus fetches the number of orders per status.
func (c *Client) CountStatus(ctx context.Context) (model.StatusCounts, error) {
	var counts model.StatusCounts
	if err := c.doJSON(ctx, http.MethodGet, "/orders/countstatus", nil, &counts); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("count_status").Inc()
		return nil, err
	}
	return counts, nil
}

// UpdateOrderStatus moves an order to a new status. The updated order comes
// back in the response, but the authoritative update for the dashboard is
// the orderStatusUpdated event the server pushes afterwards.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status model.Status) (*model.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}

	metrics.StatusUpdatesTotal.Inc()

	body := map[string]string{"status": status.String()}
	var order model.Order
	path := "/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.doJSON(ctx, http.MethodPut, path, body, &order); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("status_update").Inc()
		return nil, err
	}
	return &order, nil
}

// PrintOrder triggers the server-side receipt print. Fire-and-forget: the
// caller only learns whether the request was accepted.
func (c *Client) PrintOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("order id is required")
	}
	if err := c.doJSON(ctx, http.MethodGet, "/orders/print/"+url.PathEscape(orderID), nil, nil); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("print").Inc()
		return err
	}
	return nil
}
