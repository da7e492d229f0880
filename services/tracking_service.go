package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Carrier status codes that move the order. Anything else only updates the
// shipment.
var orderStatusForCarrier = map[string]string{
	"PICKED_UP":        models.OrderStatusShipped,
	"SHIPPED":          models.OrderStatusShipped,
	"IN_TRANSIT":       models.OrderStatusShipped,
	"OUT_FOR_DELIVERY": models.OrderStatusShipped,
	"DELIVERED":        models.OrderStatusDelivered,
	"CANCELLED":        models.OrderStatusCancelled,
	"CANCELED":         models.OrderStatusCancelled,
}

// TrackingSummary reports the outcome of one polling run
type TrackingSummary struct {
	Checked       int `json:"checked"`
	Updated       int `json:"updated"`
	OrdersUpdated int `json:"orders_updated"`
	Failed        int `json:"failed"`
}

// trackingEvent is one entry of Shipment.TrackingHistory
type trackingEvent struct {
	Status        string          `json:"status"`
	CarrierStatus string          `json:"carrier_status"`
	Scans         json.RawMessage `json:"scans,omitempty"`
	At            time.Time       `json:"at"`
}

// TrackingService polls the carrier for open shipments
type TrackingService struct {
	db          *gorm.DB
	carrier     CarrierClient
	orders      *OrderService
	concurrency int
	timeout     time.Duration
	now         func() time.Time
}

// NewTrackingService creates a tracking poller. concurrency bounds the number
// of carrier lookups in flight and timeout bounds each lookup.
func NewTrackingService(db *gorm.DB, carrier CarrierClient, orders *OrderService, concurrency int, timeout time.Duration) *TrackingService {
	if concurrency < 1 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TrackingService{
		db:          db,
		carrier:     carrier,
		orders:      orders,
		concurrency: concurrency,
		timeout:     timeout,
		now:         time.Now,
	}
}

// NormalizeCarrierStatus upper-cases a carrier status and replaces spaces
// with underscores: "Out For Delivery" becomes "OUT_FOR_DELIVERY".
func NormalizeCarrierStatus(status string) string {
	return strings.Join(strings.Fields(strings.ToUpper(status)), "_")
}

// OrderStatusForCarrier returns the order status a carrier code maps to
func OrderStatusForCarrier(code string) (string, bool) {
	status, ok := orderStatusForCarrier[NormalizeCarrierStatus(code)]
	return status, ok
}

// PollShipments checks every non-terminal shipment with an AWB. A failed
// lookup is logged and counted; it never aborts the run. The returned error
// is only set when the shipments could not be listed.
func (s *TrackingService) PollShipments(ctx context.Context) (*TrackingSummary, error) {
	var shipments []models.Shipment
	err := s.db.WithContext(ctx).
		Where("awb IS NOT NULL AND awb <> ''").
		Where("status NOT IN ?", models.TerminalShipmentStatuses).
		Order("id").
		Find(&shipments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open shipments: %w", err)
	}

	var updated, ordersUpdated, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range shipments {
		shipment := shipments[i]
		g.Go(func() error {
			changed, orderChanged, err := s.trackOne(gctx, &shipment)
			if err != nil {
				failed.Add(1)
				logger.Warn("Shipment tracking failed",
					zap.Uint("shipment_id", shipment.ID),
					zap.String("awb", *shipment.AWB),
					zap.Error(err))
				return nil
			}
			if changed {
				updated.Add(1)
			}
			if orderChanged {
				ordersUpdated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &TrackingSummary{
		Checked:       len(shipments),
		Updated:       int(updated.Load()),
		OrdersUpdated: int(ordersUpdated.Load()),
		Failed:        int(failed.Load()),
	}
	logger.Info("Tracking poll finished",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("orders_updated", summary.OrdersUpdated),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// trackOne refreshes a single shipment. It reports whether the shipment
// status changed and whether its order moved.
func (s *TrackingService) trackOne(ctx context.Context, shipment *models.Shipment) (bool, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.carrier.TrackOrder(callCtx, *shipment.AWB)
	if err != nil {
		return false, false, err
	}

	record, ok := findTrackingRecord(resp, *shipment.AWB)
	if !ok {
		return false, false, errors.New("carrier returned no tracking record")
	}
	status := NormalizeCarrierStatus(record.CurrentStatus)
	if status == "" {
		return false, false, errors.New("carrier returned an empty status")
	}

	now := s.now()
	if status == shipment.Status {
		err := s.db.WithContext(ctx).Model(&models.Shipment{}).
			Where("id = ?", shipment.ID).
			Update("last_tracked_at", now).Error
		return false, false, err
	}

	history, err := appendTrackingEvent(shipment.TrackingHistory, trackingEvent{
		Status:        status,
		CarrierStatus: record.CurrentStatus,
		Scans:         record.Scans,
		At:            now,
	})
	if err != nil {
		return false, false, err
	}

	changed, orderChanged := false, false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Shipment{}).
			Where("id = ? AND status = ?", shipment.ID, shipment.Status).
			Updates(map[string]interface{}{
				"status":           status,
				"tracking_history": history,
				"last_tracked_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update shipment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Updated by someone else since it was listed
			return nil
		}
		changed = true

		target, mapped := orderStatusForCarrier[status]
		if !mapped {
			return nil
		}

		var order models.Order
		if err := tx.Preload("Items").First(&order, shipment.OrderID).Error; err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order.Status == target || !CanTransition(order.Status, target) {
			logger.Debug("Carrier status does not move the order",
				zap.String("order_number", order.OrderNumber),
				zap.String("order_status", order.Status),
				zap.String("carrier_status", status))
			return nil
		}

		moved, err := s.orders.applyStatusTx(ctx, tx, &order, target)
		if err != nil {
			return err
		}
		orderChanged = moved
		return nil
	})
	if err != nil {
		return false, false, err
	}

	if changed {
		logger.Info("Shipment status changed",
			zap.Uint("shipment_id", shipment.ID),
			zap.String("awb", *shipment.AWB),
			zap.String("from", shipment.Status),
			zap.String("to", status),
			zap.Bool("order_updated", orderChanged))
	}
	return changed, orderChanged, nil
}

func findTrackingRecord(resp *CarrierTrackingResponse, awb string) (CarrierTrackingRecord, bool) {
	if resp == nil || len(resp.Records) == 0 {
		return CarrierTrackingRecord{}, false
	}
	for _, r := range resp.Records {
		if r.AWB == awb {
			return r, true
		}
	}
	return resp.Records[0], true
}

// appendTrackingEvent adds event to a JSON array of events
func appendTrackingEvent(history datatypes.JSON, event trackingEvent) (datatypes.JSON, error) {
	var events []json.RawMessage
	if len(history) > 0 {
		if err := json.Unmarshal(history, &events); err != nil {
			// keep unreadable history as a string entry
			legacy, _ := json.Marshal(string(history))
			events = []json.RawMessage{legacy}
		}
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tracking event: %w", err)
	}
	events = append(events, raw)

	out, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tracking history: %w", err)
	}
	return datatypes.JSON(out), nil
}
