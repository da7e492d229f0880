package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kendall-kelly/storefront-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizeCarrierStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Delivered", "DELIVERED"},
		{"out for delivery", "OUT_FOR_DELIVERY"},
		{"  In   Transit ", "IN_TRANSIT"},
		{"RTO DELIVERED", "RTO_DELIVERED"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeCarrierStatus(tt.input), tt.input)
	}
}

func TestOrderStatusForCarrier(t *testing.T) {
	tests := []struct {
		code     string
		expected string
		mapped   bool
	}{
		{"In Transit", models.OrderStatusShipped, true},
		{"Picked Up", models.OrderStatusShipped, true},
		{"Out For Delivery", models.OrderStatusShipped, true},
		{"Delivered", models.OrderStatusDelivered, true},
		{"Cancelled", models.OrderStatusCancelled, true},
		{"RTO Delivered", "", false},
		{"Pickup Scheduled", "", false},
	}

	for _, tt := range tests {
		status, ok := OrderStatusForCarrier(tt.code)
		assert.Equal(t, tt.mapped, ok, tt.code)
		assert.Equal(t, tt.expected, status, tt.code)
	}
}

type trackingFixture struct {
	db       *gorm.DB
	carrier  *MockCarrierClient
	service  *TrackingService
	variants []models.Variant
	user     *models.User
	seq      int
}

func newTrackingFixture(t *testing.T) *trackingFixture {
	t.Helper()
	db := setupTestDB(t)
	carrier := NewMockCarrierClient()
	orders := NewOrderService(OrderServiceDeps{DB: db})
	product := createProduct(t, db, "crew-socks")

	return &trackingFixture{
		db:       db,
		carrier:  carrier,
		service:  NewTrackingService(db, carrier, orders, 4, time.Second),
		variants: createSharedVariants(t, db, product, "Black", "M", 10),
		user:     createUser(t, db, "shopper@example.com"),
	}
}

// addShipment creates a PROCESSING order for one pack of two and a shipment
// in shipmentStatus. An empty awb leaves the AWB unset.
func (f *trackingFixture) addShipment(t *testing.T, awb, shipmentStatus string) *models.Shipment {
	t.Helper()
	f.seq++
	order := &models.Order{
		OrderNumber:   "ORD-20260101-T" + string(rune('A'+f.seq)),
		UserID:        f.user.ID,
		Status:        models.OrderStatusProcessing,
		PaymentStatus: models.PaymentStatusPaid,
		PaymentMethod: models.PaymentMethodOnline,
		Subtotal:      59800,
		Total:         59800,
		Items: []models.OrderItem{{
			VariantID: f.variants[1].ID,
			Quantity:  1,
			Price:     59800,
			Subtotal:  59800,
		}},
	}
	require.NoError(t, f.db.Create(order).Error)

	shipment := &models.Shipment{OrderID: order.ID, Status: shipmentStatus}
	if awb != "" {
		shipment.AWB = strPtr(awb)
	}
	require.NoError(t, f.db.Create(shipment).Error)
	return shipment
}

func (f *trackingFixture) reload(t *testing.T, shipment *models.Shipment) (models.Shipment, models.Order) {
	t.Helper()
	var s models.Shipment
	require.NoError(t, f.db.First(&s, shipment.ID).Error)
	var o models.Order
	require.NoError(t, f.db.First(&o, shipment.OrderID).Error)
	return s, o
}

func TestPollShipmentsDelivered(t *testing.T) {
	f := newTrackingFixture(t)
	shipment := f.addShipment(t, "AWB1", models.ShipmentStatusCreated)
	f.carrier.SetStatus("AWB1", "Delivered")

	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TrackingSummary{Checked: 1, Updated: 1, OrdersUpdated: 1}, *summary)

	s, o := f.reload(t, shipment)
	assert.Equal(t, models.ShipmentStatusDelivered, s.Status)
	assert.NotNil(t, s.LastTrackedAt)
	assert.Equal(t, models.OrderStatusDelivered, o.Status)

	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(s.TrackingHistory, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "DELIVERED", history[0]["status"])
	assert.Equal(t, "Delivered", history[0]["carrier_status"])

	// Terminal shipments are not polled again
	calls := f.carrier.TrackCalls()
	summary, err = f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
	assert.Equal(t, calls, f.carrier.TrackCalls())
}

func TestPollShipmentsAppendsHistory(t *testing.T) {
	f := newTrackingFixture(t)
	shipment := f.addShipment(t, "AWB1", models.ShipmentStatusCreated)

	f.carrier.SetStatus("AWB1", "Pickup Scheduled")
	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 0, summary.OrdersUpdated)

	s, o := f.reload(t, shipment)
	assert.Equal(t, "PICKUP_SCHEDULED", s.Status)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)

	f.carrier.SetStatus("AWB1", "In Transit")
	summary, err = f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrdersUpdated)

	s, o = f.reload(t, shipment)
	assert.Equal(t, "IN_TRANSIT", s.Status)
	assert.Equal(t, models.OrderStatusShipped, o.Status)

	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(s.TrackingHistory, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "PICKUP_SCHEDULED", history[0]["status"])
	assert.Equal(t, "IN_TRANSIT", history[1]["status"])
}

func TestPollShipmentsUnchangedStatus(t *testing.T) {
	f := newTrackingFixture(t)
	shipment := f.addShipment(t, "AWB1", "IN_TRANSIT")
	f.carrier.SetStatus("AWB1", "In Transit")

	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TrackingSummary{Checked: 1}, *summary)

	s, o := f.reload(t, shipment)
	assert.Equal(t, "IN_TRANSIT", s.Status)
	assert.Empty(t, s.TrackingHistory)
	assert.NotNil(t, s.LastTrackedAt)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)
}

func TestPollShipmentsIsolatesFailures(t *testing.T) {
	f := newTrackingFixture(t)
	failing := f.addShipment(t, "AWB1", models.ShipmentStatusCreated)
	healthy := f.addShipment(t, "AWB2", models.ShipmentStatusCreated)
	missing := f.addShipment(t, "AWB3", models.ShipmentStatusCreated)

	f.carrier.FailTrackWith("AWB1", errors.New("connection reset"))
	f.carrier.SetStatus("AWB2", "Shipped")

	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 2, summary.Failed)

	s, _ := f.reload(t, failing)
	assert.Equal(t, models.ShipmentStatusCreated, s.Status)
	s, o := f.reload(t, healthy)
	assert.Equal(t, "SHIPPED", s.Status)
	assert.Equal(t, models.OrderStatusShipped, o.Status)
	s, _ = f.reload(t, missing)
	assert.Equal(t, models.ShipmentStatusCreated, s.Status)
}

func TestPollShipmentsSkipsTerminalAndUnassigned(t *testing.T) {
	f := newTrackingFixture(t)
	f.addShipment(t, "", models.ShipmentStatusCreated)
	f.addShipment(t, "AWB2", models.ShipmentStatusDelivered)
	f.addShipment(t, "AWB3", models.ShipmentStatusRTODelivered)
	f.addShipment(t, "AWB4", models.ShipmentStatusCancelled)

	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
	assert.Equal(t, 0, f.carrier.TrackCalls())
}

func TestPollShipmentsRTOOnlyUpdatesShipment(t *testing.T) {
	f := newTrackingFixture(t)
	shipment := f.addShipment(t, "AWB1", "IN_TRANSIT")
	f.carrier.SetStatus("AWB1", "RTO Delivered")

	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 0, summary.OrdersUpdated)

	s, o := f.reload(t, shipment)
	assert.Equal(t, models.ShipmentStatusRTODelivered, s.Status)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)
}

func TestPollShipmentsCarrierCancellationRestoresStock(t *testing.T) {
	f := newTrackingFixture(t)
	shipment := f.addShipment(t, "AWB1", models.ShipmentStatusCreated)
	f.carrier.SetStatus("AWB1", "Cancelled")

	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrdersUpdated)

	_, o := f.reload(t, shipment)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	assert.NotNil(t, o.CancelledAt)

	// One pack of two goes back to the pool
	v := reloadVariant(t, f.db, f.variants[0].ID)
	require.NotNil(t, v.BaseStock)
	assert.Equal(t, 12, *v.BaseStock)
}

func TestPollShipmentsDoesNotMoveOrdersBackwards(t *testing.T) {
	f := newTrackingFixture(t)
	shipment := f.addShipment(t, "AWB1", "OUT_FOR_DELIVERY")
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", shipment.OrderID).
		Update("status", models.OrderStatusDelivered).Error)
	f.carrier.SetStatus("AWB1", "In Transit")

	summary, err := f.service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 0, summary.OrdersUpdated)

	_, o := f.reload(t, shipment)
	assert.Equal(t, models.OrderStatusDelivered, o.Status)
}

// slowCarrier never answers until the caller gives up
type slowCarrier struct {
	MockCarrierClient
}

func (c *slowCarrier) TrackOrder(ctx context.Context, awb string) (*CarrierTrackingResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPollShipmentsTimesOutSlowLookups(t *testing.T) {
	f := newTrackingFixture(t)
	f.addShipment(t, "AWB1", models.ShipmentStatusCreated)
	f.addShipment(t, "AWB2", models.ShipmentStatusCreated)

	service := NewTrackingService(f.db, &slowCarrier{}, NewOrderService(OrderServiceDeps{DB: f.db}), 2, 50*time.Millisecond)

	start := time.Now()
	summary, err := service.PollShipments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Less(t, time.Since(start), 2*time.Second)
}
