package services

import (
	"context"
	"fmt"
	"sync"
)

// MockCarrierClient is an in-memory CarrierClient for testing
type MockCarrierClient struct {
	created     []*CarrierOrderPayload
	statuses    map[string]string
	createErr   error
	trackErrors map[string]error
	trackCalls  int
	seq         int
	mu          sync.Mutex
}

// NewMockCarrierClient creates a new mock carrier
func NewMockCarrierClient() *MockCarrierClient {
	return &MockCarrierClient{
		statuses:    make(map[string]string),
		trackErrors: make(map[string]error),
	}
}

// SetAsMockForTesting sets this mock as the global carrier client
func (m *MockCarrierClient) SetAsMockForTesting() {
	SetCarrierClient(m)
}

// FailCreateWith makes CreateOrderWrapper return err
func (m *MockCarrierClient) FailCreateWith(err error) {
	m.mu.Lock()
	m.createErr = err
	m.mu.Unlock()
}

// SetStatus sets the tracking status reported for awb
func (m *MockCarrierClient) SetStatus(awb, status string) {
	m.mu.Lock()
	m.statuses[awb] = status
	m.mu.Unlock()
}

// FailTrackWith makes TrackOrder fail for awb
func (m *MockCarrierClient) FailTrackWith(awb string, err error) {
	m.mu.Lock()
	m.trackErrors[awb] = err
	m.mu.Unlock()
}

// CreateOrderWrapper records the payload and assigns a sequential AWB
func (m *MockCarrierClient) CreateOrderWrapper(ctx context.Context, payload *CarrierOrderPayload) (*CarrierOrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.created = append(m.created, payload)
	if m.createErr != nil {
		return nil, m.createErr
	}

	m.seq++
	awb := fmt.Sprintf("AWB%08d", m.seq)
	m.statuses[awb] = "NEW"
	return &CarrierOrderResponse{
		Status:  1,
		OrderID: fmt.Sprintf("CO%d", m.seq),
		Shipment: []CarrierShipment{{
			ShipmentID:  fmt.Sprintf("SH%d", m.seq),
			AWB:         awb,
			CourierName: "Mock Express",
			CourierID:   "42",
			LabelURL:    "https://carrier.test/label/" + awb,
			ManifestURL: "https://carrier.test/manifest/" + awb,
		}},
	}, nil
}

// TrackOrder reports the status set for awb
func (m *MockCarrierClient) TrackOrder(ctx context.Context, awb string) (*CarrierTrackingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trackCalls++
	if err := m.trackErrors[awb]; err != nil {
		return nil, err
	}
	status, ok := m.statuses[awb]
	if !ok {
		return nil, &CarrierError{StatusCode: 404, Body: `{"message":"AWB not found"}`}
	}
	return &CarrierTrackingResponse{
		Success: true,
		Records: []CarrierTrackingRecord{{AWB: awb, CurrentStatus: status}},
	}, nil
}

// Created returns the payloads sent so far
func (m *MockCarrierClient) Created() []*CarrierOrderPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*CarrierOrderPayload, len(m.created))
	copy(out, m.created)
	return out
}

// TrackCalls returns how many tracking lookups were made
func (m *MockCarrierClient) TrackCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackCalls
}
