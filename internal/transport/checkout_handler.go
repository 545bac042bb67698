package transport

import (
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type checkoutPage struct {
	Cart *domain.Cart
}

// CheckoutHandler turns the cart into an order and shows the customer's
// orders. Every route needs a logged in session.
type CheckoutHandler struct {
	checkout service.CheckoutService
	cart     service.CartService
	render   *Renderer
	recorder Recorder
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, cart service.CartService, render *Renderer, recorder Recorder, logger *zap.Logger) *CheckoutHandler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CheckoutHandler{
		checkout: checkout,
		cart:     cart,
		render:   render,
		recorder: recorder,
		logger:   logger,
	}
}

// RegisterRoutes mounts the checkout routes behind requireLogin.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router, requireLogin func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireLogin)
		r.Get("/checkout", h.Show)
		r.Post("/checkout", h.Place)
		r.Get("/orders/{id}", h.Order)
	})
}

func (h *CheckoutHandler) Show(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	cart, err := h.cart.View(r.Context(), sess)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	if cart.Empty() {
		sess.Flash(session.FlashInfo, "Seu carrinho está vazio.")
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}

	form := service.CheckoutInput{PostalCode: sess.PostalCode, PaymentMethod: "pix"}
	if cart.SelectedShipping != nil {
		form.ShippingCode = cart.SelectedShipping.Code
	}
	h.renderForm(w, r, http.StatusOK, cart, form, nil)
}

func (h *CheckoutHandler) Place(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	var input service.CheckoutInput
	if err := decodeForm(r, &input); err != nil {
		h.render.HTML(w, r, http.StatusBadRequest, "error", &View{
			Title: "Requisição inválida",
			Data:  errorPage{Status: http.StatusBadRequest, Message: "Não foi possível ler o formulário."},
		})
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), sess, sess.User.ID, input)
	if err == nil {
		h.recorder.OrderPlaced()
		h.logger.Info("Order placed",
			zap.String("order_number", order.OrderNumber),
			zap.String("user_id", sess.User.ID.String()),
			zap.String("total", order.Total.StringFixed(2)),
		)
		sess.Flash(session.FlashSuccess, fmt.Sprintf("Pedido %s realizado com sucesso!", order.OrderNumber))
		http.Redirect(w, r, "/orders/"+order.ID.String(), http.StatusSeeOther)
		return
	}

	var stockErr *service.InsufficientStockError
	switch {
	case errors.Is(err, service.ErrCartEmpty):
		sess.Flash(session.FlashInfo, "Seu carrinho está vazio.")
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
	case errors.As(err, &stockErr), errors.Is(err, repository.ErrStockConflict):
		sess.Flash(session.FlashError, "Alguns itens não têm mais estoque suficiente. Revise seu carrinho.")
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
	case errors.Is(err, service.ErrShippingUnavailable):
		h.reRender(w, r, sess, input, map[string]string{"shipping": "Opção de frete indisponível para este CEP"})
	default:
		if fe, ok := service.AsFormError(err); ok {
			h.reRender(w, r, sess, input, fe.Fields)
			return
		}
		h.render.ServerError(w, r, err)
	}
}

func (h *CheckoutHandler) reRender(w http.ResponseWriter, r *http.Request, sess *session.Session, input service.CheckoutInput, errs map[string]string) {
	cart, err := h.cart.View(r.Context(), sess)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	if cep, err := service.NormalizePostalCode(input.PostalCode); err == nil {
		if options, err := service.QuoteShipping(cep); err == nil {
			cart.ShippingOptions = options
		}
	}
	h.renderForm(w, r, http.StatusUnprocessableEntity, cart, input, errs)
}

func (h *CheckoutHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, cart *domain.Cart, form service.CheckoutInput, errs map[string]string) {
	h.render.HTML(w, r, status, "checkout", &View{
		Title:  "Finalizar compra",
		Form:   form,
		Errors: errs,
		Data:   checkoutPage{Cart: cart},
	})
}

func (h *CheckoutHandler) Order(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.render.NotFound(w, r)
		return
	}

	sess := session.FromContext(r.Context())
	order, err := h.checkout.OrderForUser(r.Context(), sess.User.ID, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) || errors.Is(err, service.ErrOrderForbidden) {
		h.render.NotFound(w, r)
		return
	}
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "order", &View{Title: "Pedido " + order.OrderNumber, Data: order})
}
