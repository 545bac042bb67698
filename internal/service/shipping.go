package service

import (
	"strings"
	"unicode"

	"storefront/internal/domain"
	"storefront/internal/session"

	"github.com/shopspring/decimal"
)

const (
	ShippingPAC    = "pac"
	ShippingSEDEX  = "sedex"
	ShippingPickup = "retirada"
)

type shippingRate struct {
	pacPrice, pacDays     string
	sedexPrice, sedexDays string
}

var (
	rateSouthEast = shippingRate{"12.90", "5-8 dias úteis", "22.90", "2-4 dias úteis"}
	rateCentral   = shippingRate{"18.90", "7-12 dias úteis", "28.90", "4-6 dias úteis"}
	rateSouth     = shippingRate{"15.90", "6-10 dias úteis", "25.90", "3-5 dias úteis"}
	rateFar       = shippingRate{"22.90", "10-15 dias úteis", "35.90", "5-8 dias úteis"}
)

// rateFor picks the table row from the first CEP digit.
func rateFor(first byte) shippingRate {
	switch first {
	case '0', '1', '2':
		return rateSouthEast
	case '3', '4':
		return rateCentral
	case '5':
		return rateSouth
	default:
		return rateFar
	}
}

// NormalizePostalCode strips everything but digits and requires exactly 8.
func NormalizePostalCode(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, raw)

	if len(digits) != 8 {
		return "", ErrInvalidPostalCode
	}
	return digits, nil
}

// QuoteShipping returns the delivery options for a postal code. Pickup is
// always offered last.
func QuoteShipping(postalCode string) ([]domain.ShippingOption, error) {
	cep, err := NormalizePostalCode(postalCode)
	if err != nil {
		return nil, err
	}

	rate := rateFor(cep[0])
	return []domain.ShippingOption{
		{Code: ShippingPAC, Name: "PAC", Price: decimal.RequireFromString(rate.pacPrice), Days: rate.pacDays},
		{Code: ShippingSEDEX, Name: "SEDEX", Price: decimal.RequireFromString(rate.sedexPrice), Days: rate.sedexDays},
		pickupOption(),
	}, nil
}

// DefaultShippingOptions are shown in the cart before a CEP is quoted.
func DefaultShippingOptions() []domain.ShippingOption {
	return []domain.ShippingOption{
		{Code: ShippingPAC, Name: "PAC", Price: decimal.RequireFromString("15.90"), Days: "8-12 dias úteis"},
		{Code: ShippingSEDEX, Name: "SEDEX", Price: decimal.RequireFromString("25.90"), Days: "3-5 dias úteis"},
		pickupOption(),
	}
}

func pickupOption() domain.ShippingOption {
	return domain.ShippingOption{
		Code:        ShippingPickup,
		Name:        "Retirada",
		Price:       decimal.Zero,
		Days:        "Agendamento necessário",
		Description: "Retire seu pedido com a gente",
	}
}

func findOption(options []domain.ShippingOption, code string) (*domain.ShippingOption, bool) {
	for i := range options {
		if options[i].Code == code {
			opt := options[i]
			return &opt, true
		}
	}
	return nil, false
}

// ShippingService quotes and remembers the visitor's delivery choice.
type ShippingService interface {
	Quote(sess *session.Session, postalCode string) ([]domain.ShippingOption, error)
	Select(sess *session.Session, code string) (*domain.ShippingOption, error)
}

type shippingService struct{}

func NewShippingService() ShippingService {
	return shippingService{}
}

// Quote stores the normalized CEP in the session. A previously chosen option
// is kept when the new quote still offers it, with the new price.
func (shippingService) Quote(sess *session.Session, postalCode string) ([]domain.ShippingOption, error) {
	options, err := QuoteShipping(postalCode)
	if err != nil {
		return nil, err
	}

	cep, _ := NormalizePostalCode(postalCode)
	var selected *domain.ShippingOption
	if sess.Shipping != nil {
		selected, _ = findOption(options, sess.Shipping.Code)
	}
	sess.SetShipping(cep, selected)

	return options, nil
}

func (shippingService) Select(sess *session.Session, code string) (*domain.ShippingOption, error) {
	options := DefaultShippingOptions()
	if sess.PostalCode != "" {
		quoted, err := QuoteShipping(sess.PostalCode)
		if err != nil {
			return nil, err
		}
		options = quoted
	}

	option, ok := findOption(options, strings.ToLower(strings.TrimSpace(code)))
	if !ok {
		return nil, ErrShippingUnavailable
	}

	sess.SetShipping(sess.PostalCode, option)
	return option, nil
}
