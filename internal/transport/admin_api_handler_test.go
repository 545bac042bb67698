package transport

import (
	"net/http"
	"strings"
	"testing"

	"storefront/internal/database/seeders"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (a *testApp) apiToken(t *testing.T, email, password string) string {
	t.Helper()
	res := a.postJSON(t, "/api/auth/login", LoginRequest{Email: email, Password: password}, "")
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	return decodeJSON(t, res.Body)["access_token"].(string)
}

func TestAdminAPIHandler_Guards(t *testing.T) {
	app := newTestApp(t)

	res := app.get(t, "/api/admin/orders")
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	app.registerCustomer(t, "cliente-api@example.com")
	token := app.apiToken(t, "cliente-api@example.com", "segredo123")
	res = app.getWithToken(t, "/api/admin/orders", token)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Contains(t, res.Body, "insufficient permissions")
}

func TestAdminAPIHandler_Orders(t *testing.T) {
	app := newTestApp(t)
	app.registerCustomer(t, "api-pedido@example.com")
	orderID := strings.TrimPrefix(app.placeOrder(t, "capivara-pelucia", 1), "/orders/")
	token := app.apiToken(t, seeders.AdminEmail, seeders.AdminPassword)

	res := app.getWithToken(t, "/api/admin/orders?status=pending", token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	list := decodeJSON(t, res.Body)
	assert.Equal(t, float64(1), list["total"])
	assert.Equal(t, "pending", list["status"])

	res = app.getWithToken(t, "/api/admin/orders?status=bogus", token)
	assert.Equal(t, "all", decodeJSON(t, res.Body)["status"])

	res = app.getWithToken(t, "/api/admin/orders/"+orderID, token)
	require.Equal(t, http.StatusOK, res.Status)
	order := decodeJSON(t, res.Body)
	assert.Equal(t, "api-pedido@example.com", order["user_email"])
	assert.Len(t, order["items"], 1)

	res = app.sendJSON(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status",
		orderStatusRequest{Status: "processing", PaymentStatus: "paid"}, token)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	order = decodeJSON(t, res.Body)
	assert.Equal(t, "processing", order["status"])
	assert.Equal(t, "paid", order["payment_status"])

	res = app.sendJSON(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status", orderStatusRequest{Status: "lost"}, token)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = app.sendJSON(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status",
		orderStatusRequest{Status: "shipped", PaymentStatus: "bogus"}, token)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	res = app.getWithToken(t, "/api/admin/orders/"+orderID, token)
	order = decodeJSON(t, res.Body)
	assert.Equal(t, "processing", order["status"], "a rejected update must not touch the order")
	assert.Equal(t, "paid", order["payment_status"])

	res = app.sendJSON(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status", orderStatusRequest{}, token)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, res.Body, "validation_errors")

	res = app.sendJSON(t, http.MethodPatch, "/api/admin/orders/8b7f2a7e-4f6c-4b8e-9a55-0c1d2e3f4a5b/status", orderStatusRequest{Status: "shipped"}, token)
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = app.getWithToken(t, "/api/admin/dashboard", token)
	require.Equal(t, http.StatusOK, res.Status)
	stats := decodeJSON(t, res.Body)["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_orders"])
	assert.Equal(t, "67.9", stats["total_revenue"])
}
