package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/database/seeders"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "transport-test-secret"

// testApp is the storefront mounted on an httptest server over a seeded
// sqlite database. The client keeps cookies and does not follow redirects.
type testApp struct {
	server   *httptest.Server
	client   *http.Client
	db       *sqlx.DB
	recorder *countingRecorder
}

type countingRecorder struct {
	mu      sync.Mutex
	cartOps map[string]int
	orders  int
}

func (c *countingRecorder) CartOperation(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cartOps[op]++
}

func (c *countingRecorder) OrderPlaced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders++
}

func (c *countingRecorder) counts(op string) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cartOps[op], c.orders
}

func passThrough(next http.Handler) http.Handler { return next }

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zap.NewNop()

	svc, err := database.Open(config.DatabaseConfig{
		Driver: database.DialectSQLite,
		Path:   filepath.Join(t.TempDir(), "shop.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	require.NoError(t, database.RunMigrations(svc.DB().DB, svc.Dialect(), logger))
	require.NoError(t, seeders.New(svc.DB(), logger).Run(context.Background()))

	db := svc.DB()
	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewVariantRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	imageRepo := repository.NewImageRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	disk, err := storage.NewLocalDisk(t.TempDir(), "/uploads")
	require.NoError(t, err)

	users := service.NewUserService(userRepo, refreshRepo, orderRepo, service.TokenConfig{Secret: testJWTSecret})
	catalog := service.NewCatalogService(productRepo, categoryRepo, variantRepo, imageRepo, service.CatalogConfig{
		StoreName:    "PersonaLISA",
		Currency:     "BRL",
		BaseURL:      "http://shop.test",
		HomeSections: []string{"chaveiros", "receitas"},
	})
	cart := service.NewCartService(productRepo, variantRepo)
	checkout := service.NewCheckoutService(cart, orderRepo)
	admin := service.NewAdminService(service.AdminRepositories{
		Users:      userRepo,
		Products:   productRepo,
		Categories: categoryRepo,
		Images:     imageRepo,
		Orders:     orderRepo,
	}, disk)

	render, err := NewRenderer(StoreInfo{Name: "PersonaLISA", Currency: "BRL", BaseURL: "http://shop.test"}, logger)
	require.NoError(t, err)

	sessions := session.NewManager(session.NewMemoryStore(), session.Options{}, logger)
	recorder := &countingRecorder{cartOps: make(map[string]int)}
	requireLogin := middleware.RequireLogin(logger)
	requireAdmin := middleware.RequireAdminSession(http.HandlerFunc(render.Forbidden), logger)

	router := chi.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		NewCatalogHandler(catalog, render, logger).RegisterRoutes(r)
		NewCartHandler(cart, service.NewShippingService(), render, recorder, logger).RegisterRoutes(r)
		NewCheckoutHandler(checkout, cart, render, recorder, logger).RegisterRoutes(r, requireLogin)
		NewAuthHandler(users, sessions, render, logger).RegisterRoutes(r, requireLogin, passThrough)
		NewAdminHandler(admin, render, logger).RegisterRoutes(r, requireLogin, requireAdmin)
	})
	router.Route("/api", func(r chi.Router) {
		auth := middleware.AuthMiddleware(testJWTSecret, logger)
		NewUserHandler(users, logger).RegisterRoutes(r, auth, passThrough)
		NewCatalogAPIHandler(catalog, logger).RegisterRoutes(r)
		NewAdminAPIHandler(admin, logger).RegisterRoutes(r, auth, middleware.RequireAdmin(logger))
	})
	router.NotFound(sessions.Middleware(http.HandlerFunc(render.NotFound)).ServeHTTP)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testApp{
		server: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		db:       db,
		recorder: recorder,
	}
}

// response is a fully read reply.
type response struct {
	Status   int
	Body     string
	Location string
}

func (a *testApp) do(t *testing.T, req *http.Request) response {
	t.Helper()
	res, err := a.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return response{Status: res.StatusCode, Body: string(body), Location: res.Header.Get("Location")}
}

func (a *testApp) get(t *testing.T, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(t, err)
	return a.do(t, req)
}

func (a *testApp) getJSON(t *testing.T, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	return a.do(t, req)
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, req)
}

// postAjax posts a form the way cart.js does.
func (a *testApp) postAjax(t *testing.T, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return a.do(t, req)
}

func (a *testApp) postJSON(t *testing.T, path string, payload interface{}, token string) response {
	t.Helper()
	return a.sendJSON(t, http.MethodPost, path, payload, token)
}

func (a *testApp) sendJSON(t *testing.T, method, path string, payload interface{}, token string) response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.do(t, req)
}

func (a *testApp) login(t *testing.T, email, password string) response {
	t.Helper()
	return a.postForm(t, "/auth/login", url.Values{"email": {email}, "password": {password}})
}

func (a *testApp) loginAdmin(t *testing.T) {
	t.Helper()
	res := a.login(t, seeders.AdminEmail, seeders.AdminPassword)
	require.Equal(t, http.StatusSeeOther, res.Status, res.Body)
}

// registerCustomer creates and logs in a customer account.
func (a *testApp) registerCustomer(t *testing.T, email string) {
	t.Helper()
	res := a.postForm(t, "/auth/register", url.Values{
		"name":            {"Maria Silva"},
		"email":           {email},
		"password":        {"segredo123"},
		"confirmPassword": {"segredo123"},
	})
	require.Equal(t, http.StatusSeeOther, res.Status, res.Body)
}

func (a *testApp) product(t *testing.T, slug string) *domain.Product {
	t.Helper()
	p, err := repository.NewProductRepository(a.db).FindActiveBySlug(context.Background(), slug)
	require.NoError(t, err)
	return p
}

func (a *testApp) variants(t *testing.T, product *domain.Product) []*domain.ProductVariant {
	t.Helper()
	out, err := repository.NewVariantRepository(a.db).ListByProduct(context.Background(), product.ID)
	require.NoError(t, err)
	return out
}

func decodeJSON(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &out), body)
	return out
}
