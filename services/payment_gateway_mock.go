package services

import (
	"context"
	"fmt"
	"sync"
)

// MockPaymentGateway is an in-memory PaymentGateway for testing
type MockPaymentGateway struct {
	orders map[string]*GatewayOrder
	err    error
	mu     sync.RWMutex
	seq    int
}

// NewMockPaymentGateway creates a new mock payment gateway
func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{orders: make(map[string]*GatewayOrder)}
}

// SetAsMockForTesting sets this mock as the global payment gateway
func (m *MockPaymentGateway) SetAsMockForTesting() {
	SetPaymentGateway(m)
}

// FailWith makes every following CreateOrder call return err
func (m *MockPaymentGateway) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// CreateOrder records a gateway order with a sequential id
func (m *MockPaymentGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*GatewayOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	m.seq++
	order := &GatewayOrder{
		ID:       fmt.Sprintf("order_mock%04d", m.seq),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	m.orders[order.ID] = order
	return order, nil
}

// GetOrders returns all created gateway orders (for testing assertions)
func (m *MockPaymentGateway) GetOrders() map[string]*GatewayOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make(map[string]*GatewayOrder, len(m.orders))
	for k, v := range m.orders {
		orders[k] = v
	}
	return orders
}
