package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock repositories for testing
type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.Name = name
	user.Phone = phone
	return nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockUserRepository) CountCustomers(ctx context.Context) (int, error) {
	count := 0
	for _, user := range m.users {
		if !user.IsAdmin() {
			count++
		}
	}
	return count, nil
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	for key, token := range m.tokens {
		if token.Revoked || token.Expired(now) {
			delete(m.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

// mockProductRepository keeps products in memory. Reads are safe for the
// concurrent loaders of the catalog pages.
type mockProductRepository struct {
	mu          sync.RWMutex
	images      *mockImageRepository
	createErr   error
	products    map[uuid.UUID]*domain.Product
	categories  map[uuid.UUID][]uuid.UUID
	categorySet map[string]uuid.UUID
	sold        map[uuid.UUID]int
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{
		products:    make(map[uuid.UUID]*domain.Product),
		categories:  make(map[uuid.UUID][]uuid.UUID),
		categorySet: make(map[string]uuid.UUID),
		sold:        make(map[uuid.UUID]int),
	}
}

func (m *mockProductRepository) add(p *domain.Product, categoryIDs ...uuid.UUID) *domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	m.categories[p.ID] = categoryIDs
	return p
}

func (m *mockProductRepository) sorted(keep func(*domain.Product) bool) []*domain.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Product{}
	for _, p := range m.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func limitProducts(products []*domain.Product, limit int) []*domain.Product {
	if limit > 0 && len(products) > limit {
		return products[:limit]
	}
	return products
}

func (m *mockProductRepository) CreateWithImage(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID, image *domain.ProductImage) error {
	if err := m.Create(ctx, product, categoryIDs); err != nil {
		return err
	}
	if image != nil && m.images != nil {
		return m.images.Create(ctx, image)
	}
	return nil
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, p := range m.sorted(func(p *domain.Product) bool { return true }) {
		if p.Slug == product.Slug {
			return repository.ErrProductSlugTaken
		}
	}
	m.add(product, categoryIDs...)
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID) error {
	if _, ok := m.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	for _, p := range m.sorted(func(p *domain.Product) bool { return p.ID != product.ID }) {
		if p.Slug == product.Slug {
			return repository.ErrProductSlugTaken
		}
	}
	m.add(product, categoryIDs...)
	return nil
}

func (m *mockProductRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Active = false
	return nil
}

func (m *mockProductRepository) SetImage(ctx context.Context, id uuid.UUID, image string) error {
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Image = image
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) FindActiveBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	found := m.sorted(func(p *domain.Product) bool { return p.Active && p.Slug == slug })
	if len(found) == 0 {
		return nil, repository.ErrProductNotFound
	}
	return found[0], nil
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	categoryID, hasCategory := m.categorySet[filter.CategorySlug]
	products := m.sorted(func(p *domain.Product) bool {
		if filter.ActiveOnly && !p.Active {
			return false
		}
		if filter.CategorySlug == "" {
			return true
		}
		if !hasCategory {
			return false
		}
		for _, id := range m.categories[p.ID] {
			if id == categoryID {
				return true
			}
		}
		return false
	})
	return products, len(products), nil
}

func (m *mockProductRepository) Search(ctx context.Context, term string) ([]*domain.Product, error) {
	term = strings.ToLower(term)
	return m.sorted(func(p *domain.Product) bool {
		return p.Active && strings.Contains(strings.ToLower(p.Name), term)
	}), nil
}

func (m *mockProductRepository) Featured(ctx context.Context, limit int) ([]*domain.Product, error) {
	return limitProducts(m.sorted(func(p *domain.Product) bool { return p.Active && p.Featured }), limit), nil
}

func (m *mockProductRepository) Newest(ctx context.Context, limit int) ([]*domain.Product, error) {
	return limitProducts(m.sorted(func(p *domain.Product) bool { return p.Active }), limit), nil
}

func (m *mockProductRepository) BestSellers(ctx context.Context, limit int) ([]*domain.Product, error) {
	return limitProducts(m.sorted(func(p *domain.Product) bool { return p.Active && m.sold[p.ID] > 0 }), limit), nil
}

func (m *mockProductRepository) ByCategorySlug(ctx context.Context, slug string, limit int) ([]*domain.Product, error) {
	products, _, err := m.List(ctx, repository.ProductFilter{CategorySlug: slug, ActiveOnly: true})
	return limitProducts(products, limit), err
}

func (m *mockProductRepository) Related(ctx context.Context, productID uuid.UUID, limit int) ([]*domain.Product, error) {
	return limitProducts(m.sorted(func(p *domain.Product) bool { return p.Active && p.ID != productID }), limit), nil
}

func (m *mockProductRepository) AdminList(ctx context.Context, page repository.Page) ([]*domain.Product, int, error) {
	products := m.sorted(func(p *domain.Product) bool { return true })
	return products, len(products), nil
}

func (m *mockProductRepository) LowStock(ctx context.Context, threshold, limit int) ([]*domain.Product, error) {
	return limitProducts(m.sorted(func(p *domain.Product) bool { return p.Active && p.Stock <= threshold }), limit), nil
}

func (m *mockProductRepository) CountActive(ctx context.Context) (int, error) {
	return len(m.sorted(func(p *domain.Product) bool { return p.Active })), nil
}

func (m *mockProductRepository) CategoryIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	return m.categories[productID], nil
}

type mockCategoryRepository struct {
	categories map[uuid.UUID]*domain.Category
	inUse      map[uuid.UUID]bool
}

func newMockCategoryRepository() *mockCategoryRepository {
	return &mockCategoryRepository{
		categories: make(map[uuid.UUID]*domain.Category),
		inUse:      make(map[uuid.UUID]bool),
	}
}

func (m *mockCategoryRepository) all(keep func(*domain.Category) bool) []*domain.Category {
	out := []*domain.Category{}
	for _, c := range m.categories {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *mockCategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	if len(m.all(func(c *domain.Category) bool { return c.Slug == category.Slug })) > 0 {
		return repository.ErrCategoryAlreadyExists
	}
	m.categories[category.ID] = category
	return nil
}

func (m *mockCategoryRepository) Update(ctx context.Context, category *domain.Category) error {
	if _, ok := m.categories[category.ID]; !ok {
		return repository.ErrCategoryNotFound
	}
	if len(m.all(func(c *domain.Category) bool { return c.Slug == category.Slug && c.ID != category.ID })) > 0 {
		return repository.ErrCategoryAlreadyExists
	}
	m.categories[category.ID] = category
	return nil
}

func (m *mockCategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.categories[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	if m.inUse[id] {
		return repository.ErrCategoryHasProducts
	}
	delete(m.categories, id)
	return nil
}

func (m *mockCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return c, nil
}

func (m *mockCategoryRepository) FindBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	found := m.all(func(c *domain.Category) bool { return c.Active && c.Slug == slug })
	if len(found) == 0 {
		return nil, repository.ErrCategoryNotFound
	}
	return found[0], nil
}

func (m *mockCategoryRepository) ListWithCounts(ctx context.Context) ([]*domain.Category, error) {
	return m.all(func(*domain.Category) bool { return true }), nil
}

func (m *mockCategoryRepository) ListActive(ctx context.Context) ([]*domain.Category, error) {
	return m.all(func(c *domain.Category) bool { return c.Active }), nil
}

func (m *mockCategoryRepository) ForProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Category, error) {
	return []*domain.Category{}, nil
}

func (m *mockCategoryRepository) Children(ctx context.Context, parentID uuid.UUID) ([]*domain.Category, error) {
	return m.all(func(c *domain.Category) bool { return c.ParentID.Valid && c.ParentID.UUID == parentID }), nil
}

type mockVariantRepository struct {
	variants map[uuid.UUID]*domain.ProductVariant
}

func newMockVariantRepository() *mockVariantRepository {
	return &mockVariantRepository{variants: make(map[uuid.UUID]*domain.ProductVariant)}
}

func (m *mockVariantRepository) Create(ctx context.Context, variant *domain.ProductVariant) error {
	m.variants[variant.ID] = variant
	return nil
}

func (m *mockVariantRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ProductVariant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, repository.ErrVariantNotFound
	}
	return v, nil
}

func (m *mockVariantRepository) byProduct(productID uuid.UUID, activeOnly bool) []*domain.ProductVariant {
	out := []*domain.ProductVariant{}
	for _, v := range m.variants {
		if v.ProductID == productID && (v.Active || !activeOnly) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

func (m *mockVariantRepository) ListActiveByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductVariant, error) {
	return m.byProduct(productID, true), nil
}

func (m *mockVariantRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductVariant, error) {
	return m.byProduct(productID, false), nil
}

func (m *mockVariantRepository) DeleteByProduct(ctx context.Context, productID uuid.UUID) error {
	for id, v := range m.variants {
		if v.ProductID == productID {
			delete(m.variants, id)
		}
	}
	return nil
}

type mockImageRepository struct {
	images []*domain.ProductImage
}

func (m *mockImageRepository) Create(ctx context.Context, image *domain.ProductImage) error {
	if image.IsPrimary {
		for _, other := range m.images {
			if other.ProductID == image.ProductID {
				other.IsPrimary = false
			}
		}
	}
	m.images = append(m.images, image)
	return nil
}

func (m *mockImageRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductImage, error) {
	out := []*domain.ProductImage{}
	for _, img := range m.images {
		if img.ProductID == productID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *mockImageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	for i, img := range m.images {
		if img.ID == id {
			m.images = append(m.images[:i], m.images[i+1:]...)
			return nil
		}
	}
	return repository.ErrImageNotFound
}

// mockOrderRepository stores orders and returns createErr from
// CreateWithItems when it is set.
type mockOrderRepository struct {
	orders    map[uuid.UUID]*domain.Order
	items     map[uuid.UUID][]*domain.OrderItem
	createErr error
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		orders: make(map[uuid.UUID]*domain.Order),
		items:  make(map[uuid.UUID][]*domain.OrderItem),
	}
}

func (m *mockOrderRepository) CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, item := range items {
		item.OrderID = order.ID
	}
	m.orders[order.ID] = order
	m.items[order.ID] = items
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockOrderRepository) Items(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderItem, error) {
	return m.items[orderID], nil
}

func (m *mockOrderRepository) list(keep func(*domain.Order) bool) []*domain.Order {
	out := []*domain.Order{}
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return m.list(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (m *mockOrderRepository) AdminList(ctx context.Context, status string, page repository.Page) ([]*domain.Order, int, error) {
	orders := m.list(func(o *domain.Order) bool {
		return status == "" || status == "all" || string(o.Status) == status
	})
	return orders, len(orders), nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, payment domain.PaymentStatus) error {
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if status != "" {
		o.Status = status
	}
	if payment != "" {
		o.PaymentStatus = payment
	}
	return nil
}

func (m *mockOrderRepository) CountAll(ctx context.Context) (int, error) {
	return len(m.orders), nil
}

func (m *mockOrderRepository) PaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, o := range m.orders {
		if o.PaymentStatus == domain.PaymentStatusPaid {
			total = total.Add(o.Total)
		}
	}
	return total, nil
}

func (m *mockOrderRepository) Recent(ctx context.Context, limit int) ([]*domain.Order, error) {
	orders := m.list(func(*domain.Order) bool { return true })
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// memoryDisk is a storage.Disk keeping objects in a map.
type memoryDisk struct {
	objects map[string][]byte
	putErr  error
}

func newMemoryDisk() *memoryDisk {
	return &memoryDisk{objects: make(map[string][]byte)}
}

func (d *memoryDisk) Put(ctx context.Context, path string, r io.Reader, contentType string) error {
	if d.putErr != nil {
		return d.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	d.objects[path] = buf.Bytes()
	return nil
}

func (d *memoryDisk) Delete(ctx context.Context, path string) error {
	delete(d.objects, path)
	return nil
}

func (d *memoryDisk) URL(path string) string {
	return "/uploads/" + path
}

func newProduct(name, price string, stock int) *domain.Product {
	now := time.Now().UTC()
	return &domain.Product{
		ID:             uuid.New(),
		Name:           name,
		Slug:           Slugify(name),
		Price:          decimal.RequireFromString(price),
		Stock:          stock,
		Active:         true,
		TrackInventory: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func newVariant(product *domain.Product, value, adjustment string, stock int) *domain.ProductVariant {
	return &domain.ProductVariant{
		ID:              uuid.New(),
		ProductID:       product.ID,
		Name:            "Tamanho",
		Value:           value,
		PriceAdjustment: decimal.RequireFromString(adjustment),
		Stock:           stock,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
}
