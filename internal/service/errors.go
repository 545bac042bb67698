package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrWrongPassword      = errors.New("current password is incorrect")

	ErrCartEmpty        = errors.New("cart is empty")
	ErrCartItemNotFound = errors.New("item not found in cart")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")

	ErrInvalidPostalCode   = errors.New("postal code must have 8 digits")
	ErrShippingUnavailable = errors.New("shipping option not offered for this postal code")

	ErrInvalidOrderStatus = errors.New("unknown order status")
	ErrOrderForbidden     = errors.New("order belongs to another customer")

	// ErrInsufficientStock matches every *InsufficientStockError through errors.Is.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports how many units can still be bought.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available", e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
