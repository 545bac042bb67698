package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type orderListResponse struct {
	Orders     []*domain.Order `json:"orders"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
	Status     string          `json:"status"`
}

type orderStatusRequest struct {
	Status        string `json:"status" validate:"required_without=PaymentStatus"`
	PaymentStatus string `json:"payment_status"`
}

// AdminAPIHandler is the token authenticated back office API.
type AdminAPIHandler struct {
	admin  service.AdminService
	logger *zap.Logger
}

func NewAdminAPIHandler(admin service.AdminService, logger *zap.Logger) *AdminAPIHandler {
	return &AdminAPIHandler{admin: admin, logger: logger}
}

// RegisterRoutes mounts /admin on the API router behind the token guards.
func (h *AdminAPIHandler) RegisterRoutes(r chi.Router, authMiddleware, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authMiddleware, requireAdmin)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
	})
}

func (h *AdminAPIHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.admin.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("Failed to load dashboard", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"stats":         dashboard.Stats,
		"low_stock":     dashboard.LowStock,
		"recent_orders": dashboard.RecentOrders,
	})
}

func (h *AdminAPIHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.admin.ListOrders(r.Context(), q.Get("status"), pageParam(q))
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	status := list.Status
	if status == "" {
		status = "all"
	}
	middleware.RespondWithJSON(w, http.StatusOK, orderListResponse{
		Orders:     list.Orders,
		Total:      list.Total,
		Page:       list.Page,
		TotalPages: list.TotalPages,
		Status:     status,
	})
}

func (h *AdminAPIHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.admin.OrderDetail(r.Context(), id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load order", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *AdminAPIHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req orderStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if verrs := middleware.FormatValidationErrors(err); len(verrs) > 0 {
			middleware.RespondWithValidationErrors(w, verrs)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.admin.UpdateOrderStatus(r.Context(), id, req.Status, req.PaymentStatus)
	switch {
	case errors.Is(err, service.ErrInvalidOrderStatus):
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid status")
		return
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	case err != nil:
		h.logger.Error("Failed to update order status", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update order")
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	h.logger.Info("Order status updated",
		zap.String("order_id", id.String()),
		zap.String("status", req.Status),
		zap.String("payment_status", req.PaymentStatus),
		zap.String("admin_id", userID.String()),
	)
	h.GetOrder(w, r)
}

func (h *AdminAPIHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return uuid.Nil, false
	}
	return id, true
}
