package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Shipment error codes
const (
	ErrCodeAlreadyShipped       = "ALREADY_SHIPPED"
	ErrCodeOrderNotDispatchable = "ORDER_NOT_DISPATCHABLE"
	ErrCodeCarrierRejected      = "CARRIER_ERROR"
)

// PackageSpec is the box used for a shipment. Dimensions are centimetres,
// weight is kilograms.
type PackageSpec struct {
	Length  decimal.Decimal
	Breadth decimal.Decimal
	Height  decimal.Decimal
	Weight  decimal.Decimal
}

// packageTier is one row of the package table. Boxes with PerUnit set weigh
// UnitWeight per unit instead of a flat Weight.
type packageTier struct {
	MaxUnits   int
	Length     string
	Breadth    string
	Height     string
	Weight     string
	PerUnit    bool
	UnitWeight string
}

// packageTable is ordered by MaxUnits; the last row has no upper bound.
var packageTable = []packageTier{
	{MaxUnits: 1, Length: "5", Breadth: "5", Height: "5", Weight: "0.1"},
	{MaxUnits: 2, Length: "5", Breadth: "5", Height: "5", Weight: "0.2"},
	{MaxUnits: 3, Length: "6.5", Breadth: "5", Height: "6", Weight: "0.3"},
	{MaxUnits: 5, Length: "7", Breadth: "6", Height: "7", PerUnit: true, UnitWeight: "0.1"},
	{MaxUnits: 0, Length: "10", Breadth: "10", Height: "10", PerUnit: true, UnitWeight: "0.1"},
}

// PackageFor picks the box for an order of units items
func PackageFor(units int) PackageSpec {
	if units < 1 {
		units = 1
	}

	tier := packageTable[len(packageTable)-1]
	for _, t := range packageTable {
		if t.MaxUnits > 0 && units <= t.MaxUnits {
			tier = t
			break
		}
	}

	pkg := PackageSpec{
		Length:  decimal.RequireFromString(tier.Length),
		Breadth: decimal.RequireFromString(tier.Breadth),
		Height:  decimal.RequireFromString(tier.Height),
	}
	if tier.PerUnit {
		pkg.Weight = decimal.RequireFromString(tier.UnitWeight).Mul(decimal.NewFromInt(int64(units)))
	} else {
		pkg.Weight = decimal.RequireFromString(tier.Weight)
	}
	return pkg
}

// ReconcileGap returns the part of the order total not explained by item
// prices and shipping, in major units. Tax and rounding residue end up here;
// the carrier receives it as transaction charges. Never negative.
func ReconcileGap(total, shipping int64, items []models.OrderItem) decimal.Decimal {
	explained := utils.ToMajor(shipping).Round(2)
	for _, item := range items {
		unit := utils.ToMajor(item.Price).Round(2)
		explained = explained.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	gap := utils.ToMajor(total).Round(2).Sub(explained)
	if gap.IsNegative() {
		return decimal.Zero
	}
	return gap
}

var colorCodes = map[string]string{
	"black":  "BLK",
	"white":  "WHT",
	"blue":   "BLU",
	"navy":   "NVY",
	"grey":   "GRY",
	"gray":   "GRY",
	"green":  "GRN",
	"red":    "RED",
	"maroon": "MRN",
	"beige":  "BGE",
	"olive":  "OLV",
	"yellow": "YLW",
	"pink":   "PNK",
	"brown":  "BRN",
}

// ColorCode abbreviates a colour name for SKUs
func ColorCode(color string) string {
	normalized := strings.ToLower(strings.TrimSpace(color))
	if code, ok := colorCodes[normalized]; ok {
		return code
	}

	var letters []rune
	for _, r := range strings.ToUpper(normalized) {
		if unicode.IsLetter(r) {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	return string(letters)
}

// EnrichSKU inserts the colour codes before the trailing size token of sku:
// "SOCK-P2-M" with Black and Blue becomes "SOCK-P2-BLK-BLU-M".
func EnrichSKU(sku string, colors []string) string {
	codes := make([]string, 0, len(colors))
	for _, c := range colors {
		if code := ColorCode(c); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return sku
	}

	joined := strings.Join(codes, "-")
	i := strings.LastIndex(sku, "-")
	if i < 0 {
		return sku + "-" + joined
	}
	return sku[:i] + "-" + joined + sku[i:]
}

// ShipmentService dispatches confirmed orders to the carrier
type ShipmentService struct {
	db             *gorm.DB
	carrier        CarrierClient
	pickupLocation string
	now            func() time.Time
}

// NewShipmentService creates a shipment service
func NewShipmentService(db *gorm.DB, carrier CarrierClient, pickupLocation string) *ShipmentService {
	return &ShipmentService{db: db, carrier: carrier, pickupLocation: pickupLocation, now: time.Now}
}

// Dispatch creates the carrier order for a confirmed order and records the
// shipment. Nothing is persisted unless the carrier accepts the order.
func (s *ShipmentService) Dispatch(ctx context.Context, orderID uint) (*models.Shipment, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items.Variant.Product").
		Preload("Address").
		Preload("User").
		Preload("Shipment").
		First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError(ErrCodeOrderNotFound, "Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.Shipment != nil {
		return nil, utils.NewConflictError(ErrCodeAlreadyShipped, "This order already has a shipment")
	}
	if order.Status != models.OrderStatusConfirmed && order.Status != models.OrderStatusProcessing {
		return nil, utils.NewConflictError(ErrCodeOrderNotDispatchable,
			fmt.Sprintf("Orders in status %s cannot be shipped", order.Status))
	}

	address, packColors, err := ResolveShippingAddress(&order)
	if err != nil {
		return nil, err
	}

	payload := BuildCarrierPayload(&order, address, packColors, s.pickupLocation)

	resp, err := s.carrier.CreateOrderWrapper(ctx, payload)
	if err != nil {
		var carrierErr *CarrierError
		if errors.As(err, &carrierErr) {
			logger.Report("Carrier rejected shipment", err,
				zap.String("order_number", order.OrderNumber),
				zap.Int("carrier_status", carrierErr.StatusCode))
			return nil, utils.NewUpstreamError(ErrCodeCarrierRejected, "The carrier rejected the shipment", carrierErr.Body, err)
		}
		logger.Report("Carrier request failed", err, zap.String("order_number", order.OrderNumber))
		return nil, utils.NewUpstreamError(ErrCodeCarrierRejected, "The carrier could not be reached", nil, err)
	}

	if len(resp.Shipment) == 0 || resp.Shipment[0].AWB == "" {
		return nil, utils.NewUpstreamError(ErrCodeCarrierRejected, "The carrier did not assign an AWB", resp, nil)
	}
	assigned := resp.Shipment[0]
	awb := assigned.AWB
	shipment := &models.Shipment{
		OrderID:           order.ID,
		AWB:               &awb,
		CourierName:       assigned.CourierName,
		CourierID:         assigned.CourierID,
		CarrierOrderID:    resp.OrderID,
		CarrierShipmentID: assigned.ShipmentID,
		Status:            models.ShipmentStatusCreated,
		LabelURL:          assigned.LabelURL,
		ManifestURL:       assigned.ManifestURL,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Shipment{}).Where("order_id = ?", order.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check shipment: %w", err)
		}
		if existing > 0 {
			return utils.NewConflictError(ErrCodeAlreadyShipped, "This order already has a shipment")
		}

		if err := tx.Create(shipment).Error; err != nil {
			return fmt.Errorf("failed to create shipment: %w", err)
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", order.ID, []string{models.OrderStatusConfirmed, models.OrderStatusProcessing}).
			Update("status", models.OrderStatusProcessing)
		if res.Error != nil {
			return fmt.Errorf("failed to update order status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return utils.NewConflictError(ErrCodeOrderNotDispatchable, "Order changed while it was being shipped")
		}
		return nil
	})
	if err != nil {
		logger.Error("Carrier accepted a shipment that could not be recorded",
			zap.String("order_number", order.OrderNumber),
			zap.String("awb", awb),
			zap.Error(err))
		return nil, err
	}

	logger.Info("Order dispatched",
		zap.String("order_number", order.OrderNumber),
		zap.String("awb", awb),
		zap.String("courier", assigned.CourierName))
	return shipment, nil
}

// ResolveShippingAddress returns the address to ship to and the legacy
// per-variant colour map. A linked Address record wins over the snapshot
// stored on the order.
func ResolveShippingAddress(order *models.Order) (models.ShippingAddress, map[string][]string, error) {
	var snapshot models.ShippingAddress
	snapshotErr := errors.New("no address snapshot")
	if strings.TrimSpace(order.ShippingAddress) != "" {
		snapshotErr = json.Unmarshal([]byte(order.ShippingAddress), &snapshot)
	}

	email := snapshot.Email
	if email == "" && order.User != nil {
		email = order.User.Email
	}

	if order.Address != nil {
		address := order.Address.ToShippingAddress(email)
		if address.Usable() {
			return address, snapshot.PackColors, nil
		}
	}

	if snapshotErr != nil || !snapshot.Usable() {
		return models.ShippingAddress{}, nil, utils.NewValidationError(ErrCodeInvalidAddress,
			"The order has no usable shipping address")
	}
	snapshot.Email = email
	return snapshot, snapshot.PackColors, nil
}

// BuildCarrierPayload maps an order onto the carrier's order format.
// order must have Items.Variant.Product loaded.
func BuildCarrierPayload(order *models.Order, address models.ShippingAddress, packColors map[string][]string, pickupLocation string) *CarrierOrderPayload {
	items := make([]CarrierOrderItem, 0, len(order.Items))
	units := 0
	subTotal := decimal.Zero
	for _, item := range order.Items {
		colors := []string(item.SelectedColors)
		if len(colors) == 0 {
			colors = packColors[strconv.FormatUint(uint64(item.VariantID), 10)]
		}

		name, sku := describeItem(item, colors)
		price := utils.ToMajor(item.Price).Round(2)
		items = append(items, CarrierOrderItem{
			Name:         name,
			SKU:          sku,
			Units:        item.Quantity,
			SellingPrice: NewAmount(price),
		})
		units += item.Quantity
		subTotal = subTotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	pkg := PackageFor(units)
	country := address.Country
	if country == "" {
		country = "India"
	}

	payload := &CarrierOrderPayload{
		OrderID:             order.OrderNumber,
		OrderDate:           order.CreatedAt.Format("2006-01-02 15:04"),
		PickupLocation:      pickupLocation,
		BillingCustomerName: address.Name,
		BillingAddress:      address.Line1,
		BillingAddress2:     address.Line2,
		BillingCity:         address.City,
		BillingPincode:      address.Pincode,
		BillingState:        address.State,
		BillingCountry:      country,
		BillingEmail:        address.Email,
		BillingPhone:        address.Phone,
		ShippingIsBilling:   true,
		OrderItems:          items,
		SubTotal:            NewAmount(subTotal),
		ShippingCharges:     NewAmount(utils.ToMajor(order.Shipping)),
		TransactionCharges:  NewAmount(ReconcileGap(order.Total, order.Shipping, order.Items)),
		TotalDiscount:       NewAmount(utils.ToMajor(order.Discount)),
		Length:              NewAmount(pkg.Length),
		Breadth:             NewAmount(pkg.Breadth),
		Height:              NewAmount(pkg.Height),
		Weight:              NewAmount(pkg.Weight),
	}

	if order.PaymentMethod == models.PaymentMethodCOD {
		payload.PaymentMethod = "COD"
		payload.PaymentStatus = "pending"
		payload.CODAmount = NewAmount(utils.ToMajor(order.Total))
	} else {
		payload.PaymentMethod = "Prepaid"
		payload.PaymentStatus = "pending"
		if order.PaymentStatus == models.PaymentStatusPaid {
			payload.PaymentStatus = "paid"
		}
		payload.CODAmount = NewAmount(decimal.Zero)
	}

	return payload
}

// describeItem names a line for the carrier. Multi-packs with colour choices
// list the colours and carry them in the SKU.
func describeItem(item models.OrderItem, colors []string) (string, string) {
	name := fmt.Sprintf("Item %d", item.VariantID)
	sku := fmt.Sprintf("VAR-%d", item.VariantID)
	pack := 1

	if v := item.Variant; v != nil {
		pack = v.PackSize()
		if v.SKU != "" {
			sku = v.SKU
		}
		if v.Product != nil {
			name = v.Product.Name
		}
	}

	if pack > 1 && len(colors) > 0 {
		return fmt.Sprintf("%s (%s)", name, strings.Join(colors, ", ")), EnrichSKU(sku, colors)
	}
	return name, sku
}
