package transport

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/transport/web"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// StoreInfo is shown on every page.
type StoreInfo struct {
	Name     string
	Currency string
	BaseURL  string
}

// View is the data handed to every template.
type View struct {
	Title       string
	Description string
	Store       StoreInfo
	User        *session.UserSummary
	CartCount   int
	Flashes     []session.Flash
	Path        string
	Query       string
	Errors      map[string]string
	Form        interface{}
	Data        interface{}
}

// Renderer executes the embedded page templates inside the shared layout.
type Renderer struct {
	pages  map[string]*template.Template
	store  StoreInfo
	logger *zap.Logger
}

var moneyPrinter = message.NewPrinter(language.BrazilianPortuguese)

var orderStatusLabels = map[domain.OrderStatus]string{
	domain.OrderStatusPending:    "Pendente",
	domain.OrderStatusProcessing: "Em preparação",
	domain.OrderStatusShipped:    "Enviado",
	domain.OrderStatusDelivered:  "Entregue",
	domain.OrderStatusCancelled:  "Cancelado",
}

var paymentStatusLabels = map[domain.PaymentStatus]string{
	domain.PaymentStatusPending:  "Aguardando",
	domain.PaymentStatusPaid:     "Pago",
	domain.PaymentStatusFailed:   "Falhou",
	domain.PaymentStatusRefunded: "Reembolsado",
}

var paymentMethodLabels = map[string]string{
	"pix":         "PIX",
	"boleto":      "Boleto",
	"credit_card": "Cartão de crédito",
}

// FormatMoney renders an amount as Brazilian reais, e.g. "R$ 1.234,50".
func FormatMoney(amount decimal.Decimal) string {
	return "R$ " + moneyPrinter.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": FormatMoney,
		"nullMoney": func(d decimal.NullDecimal) string {
			if !d.Valid {
				return ""
			}
			return FormatMoney(d.Decimal)
		},
		"plain": func(d decimal.NullDecimal) string {
			if !d.Valid {
				return ""
			}
			return d.Decimal.StringFixed(2)
		},
		"date": func(t time.Time) string {
			return t.Local().Format("02/01/2006 15:04")
		},
		"image":         service.ImageFor,
		"orderStatus":   func(s domain.OrderStatus) string { return orderStatusLabels[s] },
		"paymentStatus": func(s domain.PaymentStatus) string { return paymentStatusLabels[s] },
		"paymentMethod": func(s string) string {
			if label, ok := paymentMethodLabels[s]; ok {
				return label
			}
			return s
		},
		"jsonLD": func(s string) template.JS { return template.JS(s) },
		"pageURL": func(base string, page int) template.URL {
			u, err := url.Parse(base)
			if err != nil {
				return template.URL(base)
			}
			q := u.Query()
			q.Set("page", strconv.Itoa(page))
			u.RawQuery = q.Encode()
			return template.URL(u.String())
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
		"dict": func(pairs ...interface{}) (map[string]interface{}, error) {
			if len(pairs)%2 != 0 {
				return nil, fmt.Errorf("dict needs key/value pairs")
			}
			out := make(map[string]interface{}, len(pairs)/2)
			for i := 0; i < len(pairs); i += 2 {
				key, ok := pairs[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
				}
				out[key] = pairs[i+1]
			}
			return out, nil
		},
	}
}

// NewRenderer parses every page under templates/pages and templates/admin
// together with the layout and partials.
func NewRenderer(store StoreInfo, logger *zap.Logger) (*Renderer, error) {
	rd := &Renderer{
		pages:  make(map[string]*template.Template),
		store:  store,
		logger: logger,
	}

	for _, dir := range []string{"pages", "admin"} {
		files, err := fs.Glob(web.FS, "templates/"+dir+"/*.html")
		if err != nil {
			return nil, fmt.Errorf("failed to list %s templates: %w", dir, err)
		}
		for _, file := range files {
			name := strings.TrimSuffix(path.Base(file), ".html")
			if dir == "admin" {
				name = "admin/" + name
			}
			tmpl, err := template.New("layout.html").Funcs(templateFuncs()).ParseFS(web.FS,
				"templates/layout.html",
				"templates/partials/*.html",
				file,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
			}
			rd.pages[name] = tmpl
		}
	}

	return rd, nil
}

// HTML renders page with the session state of r filled into v.
func (rd *Renderer) HTML(w http.ResponseWriter, r *http.Request, status int, page string, v *View) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("Unknown template", zap.String("page", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if v == nil {
		v = &View{}
	}
	v.Store = rd.store
	v.Path = r.URL.Path
	if v.Title == "" {
		v.Title = rd.store.Name
	}
	if sess := session.FromContext(r.Context()); sess != nil {
		v.User = sess.User
		v.CartCount = service.CartCount(sess.Cart)
		v.Flashes = sess.Flashes()
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		rd.logger.Error("Failed to render template", zap.String("page", page), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (rd *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.HTML(w, r, http.StatusNotFound, "404", &View{Title: "Página não encontrada"})
}

func (rd *Renderer) Forbidden(w http.ResponseWriter, r *http.Request) {
	rd.HTML(w, r, http.StatusForbidden, "error", &View{
		Title: "Acesso negado",
		Data:  errorPage{Status: http.StatusForbidden, Message: "Você não tem permissão para acessar esta página."},
	})
}

// ServerError logs err and renders the generic error page.
func (rd *Renderer) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		rd.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	rd.HTML(w, r, http.StatusInternalServerError, "error", &View{
		Title: "Erro",
		Data:  errorPage{Status: http.StatusInternalServerError, Message: "Algo deu errado. Tente novamente em instantes."},
	})
}

type errorPage struct {
	Status  int
	Message string
}
