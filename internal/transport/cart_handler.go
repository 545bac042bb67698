package transport

import (
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder receives business events for instrumentation.
type Recorder interface {
	CartOperation(op string)
	OrderPlaced()
}

type nopRecorder struct{}

func (nopRecorder) CartOperation(string) {}
func (nopRecorder) OrderPlaced()         {}

type cartLineRequest struct {
	ProductID string `json:"productId" form:"productId" validate:"required,uuid"`
	VariantID string `json:"variantId" form:"variantId" validate:"omitempty,uuid"`
	Quantity  int    `json:"quantity" form:"quantity"`
}

type postalCodeRequest struct {
	PostalCode string `json:"postalCode" form:"postalCode"`
}

type shippingSelectRequest struct {
	Code string `json:"code" form:"code"`
}

// CartHandler serves the cart page and its mutations. Mutations answer JSON
// to fetch clients and redirect back to the cart with a flash otherwise.
type CartHandler struct {
	cart     service.CartService
	shipping service.ShippingService
	render   *Renderer
	recorder Recorder
	logger   *zap.Logger
}

func NewCartHandler(cart service.CartService, shipping service.ShippingService, render *Renderer, recorder Recorder, logger *zap.Logger) *CartHandler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CartHandler{
		cart:     cart,
		shipping: shipping,
		render:   render,
		recorder: recorder,
		logger:   logger,
	}
}

func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Post("/add", h.Add)
		r.Post("/update", h.Update)
		r.Post("/remove", h.Remove)
		r.Post("/clear", h.Clear)
		r.Post("/shipping", h.QuoteShipping)
		r.Post("/shipping/select", h.SelectShipping)
	})
}

func (h *CartHandler) Show(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	cart, err := h.cart.View(r.Context(), sess)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	if middleware.WantsJSON(r) {
		middleware.RespondWithJSON(w, http.StatusOK, cart)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "cart", &View{Title: "Carrinho", Data: cart})
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	req, productID, variantID, ok := h.lineRequest(w, r)
	if !ok {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	count, err := h.cart.AddItem(r.Context(), session.FromContext(r.Context()), productID, variantID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.recorder.CartOperation(metrics.CartAdd)
	h.succeed(w, r, count, "Produto adicionado ao carrinho!")
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, productID, variantID, ok := h.lineRequest(w, r)
	if !ok {
		return
	}

	count, err := h.cart.UpdateItem(r.Context(), session.FromContext(r.Context()), productID, variantID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.recorder.CartOperation(metrics.CartUpdate)
	h.succeed(w, r, count, "Carrinho atualizado")
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	_, productID, variantID, ok := h.lineRequest(w, r)
	if !ok {
		return
	}

	count, err := h.cart.RemoveItem(r.Context(), session.FromContext(r.Context()), productID, variantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.recorder.CartOperation(metrics.CartRemove)
	h.succeed(w, r, count, "Item removido do carrinho")
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear(r.Context(), session.FromContext(r.Context()))
	h.recorder.CartOperation(metrics.CartClear)
	h.succeed(w, r, 0, "Carrinho esvaziado")
}

func (h *CartHandler) QuoteShipping(w http.ResponseWriter, r *http.Request) {
	var req postalCodeRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sess := session.FromContext(r.Context())
	options, err := h.shipping.Quote(sess, req.PostalCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if middleware.WantsJSON(r) {
		middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"postalCode": sess.PostalCode,
			"options":    options,
		})
		return
	}
	sess.Flash(session.FlashSuccess, "Frete calculado para o CEP "+sess.PostalCode)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (h *CartHandler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingSelectRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	option, err := h.shipping.Select(session.FromContext(r.Context()), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if middleware.WantsJSON(r) {
		middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"shipping": option,
		})
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// lineRequest decodes and validates the product/variant pair of a cart
// mutation, answering the client itself when the request is unusable.
func (h *CartHandler) lineRequest(w http.ResponseWriter, r *http.Request) (cartLineRequest, uuid.UUID, *uuid.UUID, bool) {
	var req cartLineRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return req, uuid.Nil, nil, false
	}

	if err := middleware.ValidateRequest(&req); err != nil {
		if middleware.WantsJSON(r) {
			middleware.RespondWithValidationErrors(w, middleware.FormatValidationErrors(err))
		} else {
			h.fail(w, r, errInvalidCartRequest)
		}
		return req, uuid.Nil, nil, false
	}

	productID, _ := uuid.Parse(req.ProductID)
	variantID, _ := optionalUUID(req.VariantID)
	return req, productID, variantID, true
}

var errInvalidCartRequest = errors.New("invalid cart request")

func (h *CartHandler) succeed(w http.ResponseWriter, r *http.Request, count int, message string) {
	if middleware.WantsJSON(r) {
		middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"cartCount": count,
			"message":   message,
		})
		return
	}
	session.FromContext(r.Context()).Flash(session.FlashSuccess, message)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (h *CartHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := cartErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Cart operation failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	if middleware.WantsJSON(r) {
		var stockErr *service.InsufficientStockError
		if errors.As(err, &stockErr) {
			middleware.RespondWithErrorDetails(w, status, message, map[string]interface{}{"available": stockErr.Available})
			return
		}
		middleware.RespondWithError(w, status, message)
		return
	}

	if status == http.StatusInternalServerError {
		h.render.ServerError(w, r, nil)
		return
	}
	session.FromContext(r.Context()).Flash(session.FlashError, message)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func cartErrorStatus(err error) (int, string) {
	var stockErr *service.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return http.StatusConflict, fmt.Sprintf("Estoque insuficiente. Disponível: %d", stockErr.Available)
	case errors.Is(err, repository.ErrProductNotFound):
		return http.StatusNotFound, "Produto não encontrado"
	case errors.Is(err, repository.ErrVariantNotFound):
		return http.StatusNotFound, "Variação não encontrada"
	case errors.Is(err, service.ErrCartEmpty):
		return http.StatusNotFound, "Seu carrinho está vazio"
	case errors.Is(err, service.ErrCartItemNotFound):
		return http.StatusNotFound, "Item não encontrado no carrinho"
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, "Quantidade inválida"
	case errors.Is(err, service.ErrInvalidPostalCode):
		return http.StatusBadRequest, "CEP inválido. Digite um CEP válido com 8 dígitos."
	case errors.Is(err, service.ErrShippingUnavailable):
		return http.StatusBadRequest, "Opção de frete indisponível"
	case errors.Is(err, errInvalidCartRequest):
		return http.StatusBadRequest, "Produto inválido"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "Requisição inválida"
	default:
		return http.StatusInternalServerError, "Erro ao atualizar o carrinho"
	}
}
