package models

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Session{},
		&Address{},
		&Product{},
		&Feature{},
		&Variant{},
		&CartItem{},
		&Coupon{},
		&Order{},
		&OrderItem{},
		&CouponUsage{},
		&Shipment{},
	}
}
