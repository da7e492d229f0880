package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutRouter(userID uint) *gin.Engine {
	router := setupTestRouter()
	orders := router.Group("/orders", mockAuthMiddleware(userID))
	orders.POST("", Checkout)
	orders.GET("", ListMyOrders)
	orders.GET("/:number", GetMyOrder)
	orders.POST("/:number/cancel", CancelMyOrder)
	router.POST("/payments/verify", VerifyPayment)
	router.POST("/payments/webhook", PaymentWebhook)
	return router
}

func TestCheckout(t *testing.T) {
	env := setupControllerTest(t)
	user := env.createCustomer(t, "asha@example.com")
	empty := env.createCustomer(t, "ravi@example.com")
	_, variants := env.createSocks(t, 10)

	tests := []struct {
		name           string
		userID         uint
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
		checkResponse  func(t *testing.T, data map[string]interface{})
	}{
		{
			name:           "Fail without an address",
			userID:         user.ID,
			requestBody:    map[string]interface{}{"payment_method": "cod"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Fail with unknown payment method",
			userID:         user.ID,
			requestBody:    map[string]interface{}{"payment_method": "cheque", "address": testAddress},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Fail with an empty cart",
			userID:         empty.ID,
			requestBody:    map[string]interface{}{"payment_method": "cod", "address": testAddress},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "CART_EMPTY",
		},
		{
			name:           "Cash on delivery confirms immediately",
			userID:         user.ID,
			requestBody:    map[string]interface{}{"payment_method": "cod", "address": testAddress},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, data map[string]interface{}) {
				order := data["order"].(map[string]interface{})
				assert.Equal(t, models.OrderStatusConfirmed, order["status"])
				assert.Equal(t, models.PaymentStatusPending, order["payment_status"])
				assert.Equal(t, float64(59800), order["subtotal"])
				assert.Equal(t, float64(4900), order["shipping"])
				assert.Equal(t, float64(64700), order["total"])
				assert.Nil(t, data["gateway_order"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.expectedStatus == http.StatusCreated {
				env.addToCart(t, user.ID, variants[1].ID, 1)
			}

			w := performRequest(checkoutRouter(tt.userID), http.MethodPost, "/orders", tt.requestBody)
			assertStatus(t, tt.expectedStatus, w)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCode(t, w))
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, decodeResponse(t, w)["data"].(map[string]interface{}))
			}
		})
	}

	// COD deducts the pack from the shared pool
	assert.Equal(t, 8, env.baseStock(t, variants[1].ID))

	var cartLines int64
	env.db.Model(&models.CartItem{}).Where("user_id = ?", user.ID).Count(&cartLines)
	assert.Zero(t, cartLines)
}

func TestOnlinePaymentFlow(t *testing.T) {
	env := setupControllerTest(t)
	user := env.createCustomer(t, "asha@example.com")
	_, variants := env.createSocks(t, 10)
	env.addToCart(t, user.ID, variants[0].ID, 3)
	router := checkoutRouter(user.ID)

	w := performRequest(router, http.MethodPost, "/orders", map[string]interface{}{
		"payment_method": "online",
		"address":        testAddress,
	})
	assertStatus(t, http.StatusCreated, w)
	data := decodeResponse(t, w)["data"].(map[string]interface{})
	order := data["order"].(map[string]interface{})
	assert.Equal(t, models.OrderStatusPending, order["status"])
	assert.Equal(t, "rzp_test_key", data["gateway_key_id"])
	gatewayOrderID := data["gateway_order"].(map[string]interface{})["id"].(string)
	orderNumber := order["order_number"].(string)

	// Nothing is deducted before payment
	assert.Equal(t, 10, env.baseStock(t, variants[0].ID))

	w = performRequest(router, http.MethodPost, "/payments/verify", map[string]interface{}{
		"gateway_order_id": gatewayOrderID,
		"payment_id":       "pay_001",
		"signature":        "deadbeef",
	})
	assertStatus(t, http.StatusBadRequest, w)
	assert.Equal(t, services.ErrCodeInvalidSignature, errorCode(t, w))
	assert.Equal(t, 10, env.baseStock(t, variants[0].ID))

	verify := map[string]interface{}{
		"gateway_order_id": gatewayOrderID,
		"payment_id":       "pay_001",
		"signature":        services.SignPayment(testKeySecret, gatewayOrderID, "pay_001"),
	}
	for i := 0; i < 2; i++ {
		w = performRequest(router, http.MethodPost, "/payments/verify", verify)
		assertStatus(t, http.StatusOK, w)
		confirmed := decodeResponse(t, w)["data"].(map[string]interface{})
		assert.Equal(t, models.OrderStatusConfirmed, confirmed["status"])
		assert.Equal(t, models.PaymentStatusPaid, confirmed["payment_status"])
	}

	// A replayed verification deducts once
	assert.Equal(t, 7, env.baseStock(t, variants[0].ID))

	w = performRequest(router, http.MethodGet, "/orders/"+orderNumber, nil)
	assertStatus(t, http.StatusOK, w)

	w = performRequest(router, http.MethodGet, "/orders", nil)
	assertStatus(t, http.StatusOK, w)
	assert.Len(t, decodeResponse(t, w)["data"].([]interface{}), 1)

	w = performRequest(router, http.MethodPost, "/orders/"+orderNumber+"/cancel", nil)
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, models.OrderStatusCancelled, decodeResponse(t, w)["data"].(map[string]interface{})["status"])
	assert.Equal(t, 10, env.baseStock(t, variants[0].ID))

	w = performRequest(checkoutRouter(999), http.MethodGet, "/orders/"+orderNumber, nil)
	assertStatus(t, http.StatusNotFound, w)
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhook(t *testing.T) {
	env := setupControllerTest(t)
	user := env.createCustomer(t, "asha@example.com")
	_, variants := env.createSocks(t, 10)
	env.addToCart(t, user.ID, variants[0].ID, 1)
	router := checkoutRouter(user.ID)

	w := performRequest(router, http.MethodPost, "/orders", map[string]interface{}{
		"payment_method": "online",
		"address":        testAddress,
	})
	assertStatus(t, http.StatusCreated, w)
	gatewayOrderID := decodeResponse(t, w)["data"].(map[string]interface{})["gateway_order"].(map[string]interface{})["id"].(string)

	body := []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","order_id":%q,"status":"captured"}}}}`,
		gatewayOrderID))

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
		req.Header.Set(WebhookSignatureHeader, signature)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	w = send("bad-signature")
	assertStatus(t, http.StatusBadRequest, w)
	assert.Equal(t, services.ErrCodeInvalidSignature, errorCode(t, w))

	w = send(signWebhook(body))
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, true, decodeResponse(t, w)["data"].(map[string]interface{})["processed"])

	// Redelivery is acknowledged without a second confirmation
	w = send(signWebhook(body))
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, false, decodeResponse(t, w)["data"].(map[string]interface{})["processed"])
	assert.Equal(t, 9, env.baseStock(t, variants[0].ID))
}

func adminRouter() *gin.Engine {
	router := setupTestRouter()
	admin := router.Group("/admin")
	admin.GET("/orders", AdminListOrders)
	admin.GET("/orders/:id", AdminGetOrder)
	admin.PATCH("/orders/:id/status", AdminUpdateOrderStatus)
	admin.POST("/orders/:id/cancel", AdminCancelOrder)
	admin.POST("/orders/:id/ship", AdminShipOrder)
	admin.POST("/shipments/track", AdminTrackShipments)
	admin.GET("/dashboard", AdminDashboard)
	admin.POST("/products", CreateProduct)
	admin.GET("/products/:id", AdminGetProduct)
	admin.PATCH("/products/:id", SetProductActive)
	admin.PUT("/products/:id/stock", UpdateBaseStock)
	admin.PATCH("/variants/:id/price", UpdateVariantPrice)
	admin.DELETE("/variants/:id", RemoveVariant)
	admin.POST("/coupons", CreateCoupon)
	admin.GET("/coupons", ListCoupons)
	admin.DELETE("/coupons/:id", DeactivateCoupon)
	return router
}

func placeCODOrder(t *testing.T, env *testEnv, userID, variantID uint, quantity int) uint {
	t.Helper()
	env.addToCart(t, userID, variantID, quantity)
	w := performRequest(checkoutRouter(userID), http.MethodPost, "/orders", map[string]interface{}{
		"payment_method": "cod",
		"address":        testAddress,
	})
	assertStatus(t, http.StatusCreated, w)
	order := decodeResponse(t, w)["data"].(map[string]interface{})["order"].(map[string]interface{})
	return uint(order["id"].(float64))
}

func TestAdminShipAndTrack(t *testing.T) {
	env := setupControllerTest(t)
	user := env.createCustomer(t, "asha@example.com")
	_, variants := env.createSocks(t, 10)
	orderID := placeCODOrder(t, env, user.ID, variants[1].ID, 1)
	router := adminRouter()

	w := performRequest(router, http.MethodPost, fmt.Sprintf("/admin/orders/%d/ship", orderID), nil)
	assertStatus(t, http.StatusCreated, w)
	shipment := decodeResponse(t, w)["data"].(map[string]interface{})
	awb := shipment["awb"].(string)
	assert.NotEmpty(t, awb)
	assert.Equal(t, models.ShipmentStatusCreated, shipment["status"])

	created := env.carrier.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "Warehouse", created[0].PickupLocation)

	w = performRequest(router, http.MethodPost, fmt.Sprintf("/admin/orders/%d/ship", orderID), nil)
	assertStatus(t, http.StatusConflict, w)
	assert.Equal(t, services.ErrCodeAlreadyShipped, errorCode(t, w))

	env.carrier.SetStatus(awb, "Delivered")
	w = performRequest(router, http.MethodPost, "/admin/shipments/track", nil)
	assertStatus(t, http.StatusOK, w)
	summary := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["checked"])
	assert.Equal(t, float64(1), summary["updated"])

	w = performRequest(router, http.MethodGet, fmt.Sprintf("/admin/orders/%d", orderID), nil)
	assertStatus(t, http.StatusOK, w)
	order := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, models.OrderStatusDelivered, order["status"])
	assert.Equal(t, "DELIVERED", order["shipment"].(map[string]interface{})["status"])
}

func TestAdminShipCarrierFailure(t *testing.T) {
	env := setupControllerTest(t)
	user := env.createCustomer(t, "asha@example.com")
	_, variants := env.createSocks(t, 10)
	orderID := placeCODOrder(t, env, user.ID, variants[0].ID, 1)

	env.carrier.FailCreateWith(&services.CarrierError{StatusCode: http.StatusUnprocessableEntity, Body: `{"message":"pincode not serviceable"}`})

	w := performRequest(adminRouter(), http.MethodPost, fmt.Sprintf("/admin/orders/%d/ship", orderID), nil)
	assertStatus(t, http.StatusBadGateway, w)
	response := decodeResponse(t, w)
	errorData := response["error"].(map[string]interface{})
	assert.Equal(t, services.ErrCodeCarrierRejected, errorData["code"])
	assert.Contains(t, errorData["details"], "pincode not serviceable")

	var shipments int64
	env.db.Model(&models.Shipment{}).Count(&shipments)
	assert.Zero(t, shipments)
}

func TestAdminOrderStatus(t *testing.T) {
	env := setupControllerTest(t)
	user := env.createCustomer(t, "asha@example.com")
	_, variants := env.createSocks(t, 10)
	orderID := placeCODOrder(t, env, user.ID, variants[0].ID, 2)
	router := adminRouter()

	tests := []struct {
		name           string
		status         string
		expectedStatus int
		expectedError  string
	}{
		{name: "Manual confirmation is refused", status: "confirmed", expectedStatus: http.StatusBadRequest, expectedError: services.ErrCodeInvalidTransition},
		{name: "Unknown status", status: "LOST", expectedStatus: http.StatusBadRequest, expectedError: "INVALID_STATUS"},
		{name: "Move to processing", status: "processing", expectedStatus: http.StatusOK},
		{name: "Backwards is refused", status: "CONFIRMED", expectedStatus: http.StatusBadRequest, expectedError: services.ErrCodeInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(router, http.MethodPatch, fmt.Sprintf("/admin/orders/%d/status", orderID),
				map[string]interface{}{"status": tt.status})
			assertStatus(t, tt.expectedStatus, w)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCode(t, w))
			}
		})
	}

	w := performRequest(router, http.MethodPost, fmt.Sprintf("/admin/orders/%d/cancel", orderID), nil)
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, 10, env.baseStock(t, variants[0].ID))

	w = performRequest(router, http.MethodGet, "/admin/orders?status=cancelled", nil)
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, float64(1), decodeResponse(t, w)["data"].(map[string]interface{})["total"])

	w = performRequest(router, http.MethodGet, "/admin/orders/999", nil)
	assertStatus(t, http.StatusNotFound, w)

	w = performRequest(router, http.MethodGet, "/admin/dashboard", nil)
	assertStatus(t, http.StatusOK, w)
	stats := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["orders_by_status"].(map[string]interface{})[models.OrderStatusCancelled])
}

func TestAdminCatalogEndpoints(t *testing.T) {
	env := setupControllerTest(t)
	router := adminRouter()

	product := map[string]interface{}{
		"name":     "Ankle Socks",
		"category": "socks",
		"features": []string{"Cotton rich"},
		"variants": []map[string]interface{}{
			{"size": "M", "color": "White", "pack": 1, "price": 19900, "base_stock": 30, "use_shared_stock": true},
			{"size": "M", "color": "White", "pack": 3, "price": 49900, "base_stock": 30, "use_shared_stock": true},
		},
	}

	w := performRequest(router, http.MethodPost, "/admin/products", product)
	assertStatus(t, http.StatusCreated, w)
	created := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "ankle-socks", created["slug"])
	productID := uint(created["id"].(float64))
	variants := created["variants"].([]interface{})
	require.Len(t, variants, 2)

	w = performRequest(router, http.MethodPost, "/admin/products", product)
	assertStatus(t, http.StatusConflict, w)
	assert.Equal(t, "PRODUCT_EXISTS", errorCode(t, w))

	w = performRequest(router, http.MethodPost, "/admin/products", map[string]interface{}{"name": "No Variants", "category": "socks"})
	assertStatus(t, http.StatusBadRequest, w)

	w = performRequest(router, http.MethodPut, fmt.Sprintf("/admin/products/%d/stock", productID),
		map[string]interface{}{"color": "White", "size": "M", "base_stock": 12})
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, float64(2), decodeResponse(t, w)["data"].(map[string]interface{})["variants_updated"])

	w = performRequest(router, http.MethodPut, fmt.Sprintf("/admin/products/%d/stock", productID),
		map[string]interface{}{"color": "Red", "size": "M", "base_stock": 12})
	assertStatus(t, http.StatusNotFound, w)

	variantID := uint(variants[0].(map[string]interface{})["id"].(float64))
	w = performRequest(router, http.MethodPatch, fmt.Sprintf("/admin/variants/%d/price", variantID), map[string]interface{}{"price": 0})
	assertStatus(t, http.StatusBadRequest, w)

	w = performRequest(router, http.MethodPatch, fmt.Sprintf("/admin/variants/%d/price", variantID), map[string]interface{}{"price": 17900})
	assertStatus(t, http.StatusOK, w)

	w = performRequest(router, http.MethodDelete, fmt.Sprintf("/admin/variants/%d", variantID), nil)
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, "deleted", decodeResponse(t, w)["data"].(map[string]interface{})["action"])

	w = performRequest(router, http.MethodPatch, fmt.Sprintf("/admin/products/%d", productID), map[string]interface{}{"is_active": false})
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, false, decodeResponse(t, w)["data"].(map[string]interface{})["is_active"])

	w = performRequest(router, http.MethodGet, fmt.Sprintf("/admin/products/%d", productID), nil)
	assertStatus(t, http.StatusOK, w)
	assert.Len(t, decodeResponse(t, w)["data"].(map[string]interface{})["variants"], 1)

	var count int64
	env.db.Model(&models.Variant{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAdminCouponEndpoints(t *testing.T) {
	setupControllerTest(t)
	router := adminRouter()

	w := performRequest(router, http.MethodPost, "/admin/coupons", map[string]interface{}{
		"code":           "welcome15",
		"discount_type":  "PERCENTAGE",
		"discount_value": 15,
		"max_discount":   20000,
	})
	assertStatus(t, http.StatusCreated, w)
	coupon := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "WELCOME15", coupon["code"])
	couponID := uint(coupon["id"].(float64))

	w = performRequest(router, http.MethodPost, "/admin/coupons", map[string]interface{}{
		"code":           "BAD",
		"discount_type":  "BOGO",
		"discount_value": 1,
	})
	assertStatus(t, http.StatusBadRequest, w)

	w = performRequest(router, http.MethodDelete, fmt.Sprintf("/admin/coupons/%d", couponID), nil)
	assertStatus(t, http.StatusOK, w)
	assert.Equal(t, false, decodeResponse(t, w)["data"].(map[string]interface{})["is_active"])

	w = performRequest(router, http.MethodGet, "/admin/coupons", nil)
	assertStatus(t, http.StatusOK, w)
	assert.Len(t, decodeResponse(t, w)["data"], 1)
}
