// Package seeders loads the demo catalog and the default admin account.
package seeders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	AdminEmail    = "admin@personalisa.com"
	AdminPassword = "admin123"
)

type categorySeed struct {
	name, slug, description string
}

var rootCategories = []categorySeed{
	{"Pelúcias", "pelucias", "Pelúcias artesanais fofas e únicas"},
	{"Coleção Bebezitos", "colecao-bebezitos", "Pelúcias especiais da coleção bebê"},
	{"Personagens", "personagens", "Personagens de anime, games e filmes"},
	{"Chaveiros", "chaveiros", "Chaveiros de pelúcia e acessórios"},
	{"Camisetas", "camisetas", "Camisetas com estampas exclusivas"},
	{"Receitas", "receitas", "Receitas de crochê para fazer em casa"},
	{"Acessórios", "acessorios", "Bolsas, ecobags e outros acessórios"},
	{"Ecobags", "ecobags", "Sacolas sustentáveis e estilosas"},
	{"Miseryswin", "miseryswin", "Coleção especial Miseryswin"},
}

var characterCategories = []categorySeed{
	{"Ghibli", "ghibli", ""},
	{"Sanrio", "sanrio", ""},
	{"Hora de Aventura", "hora-de-aventura", ""},
	{"Super Mario", "super-mario", ""},
	{"Bee and Puppycat", "bee-and-puppycat", ""},
	{"Pokémon", "pokemon", ""},
	{"One Piece", "one-piece", ""},
	{"Hollow Knight", "hollow-knight", ""},
}

type variantSeed struct {
	name, value string
}

type productSeed struct {
	name, slug, description string
	price, comparePrice     string
	stock                   int
	featured                bool
	category                string
	variants                []variantSeed
}

var products = []productSeed{
	{
		name: "Pelúcias Ghibli - 3 modelos", slug: "pelucias-ghibli-3-modelos",
		description: "Escolha entre Totoro, No-face ou Ponyo. Pelúcias fofíssimas dos personagens do Studio Ghibli.",
		price: "75.00", stock: 3, featured: true, category: "ghibli",
		variants: []variantSeed{{"Modelo", "Totoro"}, {"Modelo", "No Face"}, {"Modelo", "Ponyo"}},
	},
	{
		name: "Gatinhos pelúcia - escolha seu modelo", slug: "gatinhos-pelucia-escolha-modelo",
		description: "Gatinhos de pelúcia super fofinhos! Vários modelos disponíveis. Tamanho aproximado: 15cm de altura com o rabinho.",
		price: "105.00", comparePrice: "130.00", stock: 6, featured: true, category: "pelucias",
		variants: []variantSeed{
			{"Cor", "Siamês"}, {"Cor", "Malhado"}, {"Cor", "Cinza"}, {"Cor", "Branco"},
			{"Cor", "Preto"}, {"Cor", "Laranja"}, {"Cor", "Amarelo e branco"},
		},
	},
	{
		name: "Pelúcia Snoopy", slug: "pelucia-snoopy",
		description: "O famoso cachorrinho Snoopy em versão pelúcia! Super macio e fofinho.",
		price: "95.00", stock: 1, featured: true, category: "pelucias",
	},
	{
		name: "Chaveiro snoopy pelúcia", slug: "chaveiro-snoopy-pelucia",
		description: "Chaveiro do Snoopy em pelúcia, perfeito para levar seu personagem favorito sempre com você!",
		price: "55.00", stock: 1, category: "chaveiros",
	},
	{
		name: "Pikachu Pelúcia", slug: "pikachu-pelucia",
		description: "O Pokémon mais famoso do mundo em versão pelúcia! Amarelinho e fofo.",
		price: "75.00", comparePrice: "125.00", stock: 2, featured: true, category: "pokemon",
	},
	{
		name: "Ditto pelúcia", slug: "ditto-pelucia",
		description: "Ditto, o Pokémon que pode se transformar em qualquer outro! Rosa e sorridente.",
		price: "85.00", stock: 1, category: "pelucias",
	},
	{
		name: "Mini pelúcias Sanrio", slug: "mini-pelucias-sanrio",
		description: "Miniaturas fofas dos personagens Sanrio: Hello Kitty, My Melody, Cinnamoroll e mais!",
		price: "50.00", comparePrice: "60.00", stock: 5, category: "sanrio",
		variants: []variantSeed{
			{"Modelo", "Hello Kitty"}, {"Modelo", "My Melody"}, {"Modelo", "Cinnamoroll"},
			{"Modelo", "Keroppi"}, {"Modelo", "Pompompurin"},
		},
	},
	{
		name: "Sapinho popozudo", slug: "sapinho-popozudo",
		description: "O sapinho mais fofo da internet! Com um popozinho irresistível.",
		price: "50.00", comparePrice: "55.00", stock: 1, featured: true, category: "pelucias",
	},
	{
		name: "Capivara pelúcia", slug: "capivara-pelucia",
		description: "Capivara tranquilona em versão pelúcia. Perfeita para relaxar!",
		price: "55.00", stock: 3, category: "pelucias",
	},
	{
		name: "Axolote pelúcia - 3 cores", slug: "axolote-pelucia-3-cores",
		description: "Axolotes fofos em 3 cores diferentes! Escolha seu favorito.",
		price: "65.00", comparePrice: "73.00", stock: 3, category: "pelucias",
		variants: []variantSeed{{"Cor", "Rosa"}, {"Cor", "Azul"}, {"Cor", "Roxo"}},
	},
	{
		name: "Porta isqueiro - cogumelo", slug: "porta-isqueiro-cogumelo",
		description: "Porta isqueiro em formato de cogumelo, super útil e fofo!",
		price: "35.00", stock: 1, category: "chaveiros",
	},
	{
		name: "Bolsinhas porta treco - 2 tamanhos", slug: "bolsinhas-porta-treco-2-tamanhos",
		description: "Bolsinhas práticas para guardar seus pertences com estilo!",
		price: "38.00", stock: 1, category: "chaveiros",
		variants: []variantSeed{
			{"Modelo", "Estrela - P"}, {"Modelo", "Estrela - M"},
			{"Modelo", "Morango - P"}, {"Modelo", "Morango - M"},
		},
	},
	{
		name: "[Receita] Totoro e No-Face", slug: "receita-totoro-no-face",
		description: "Receita completa para fazer suas próprias pelúcias do Totoro e No-Face em crochê!",
		price: "9.50", comparePrice: "12.00", stock: 10, category: "receitas",
	},
	{
		name: "[RECEITA] Sapinho pelúcia", slug: "receita-sapinho-pelucia",
		description: "Aprenda a fazer o famoso sapinho popozudo em crochê com nossa receita detalhada!",
		price: "6.50", comparePrice: "15.00", stock: 10, category: "receitas",
	},
}

// Seeder inserts demo data, skipping rows that already exist.
type Seeder struct {
	users      repository.UserRepository
	categories repository.CategoryRepository
	products   repository.ProductRepository
	variants   repository.VariantRepository
	logger     *zap.Logger
}

func New(db *sqlx.DB, logger *zap.Logger) *Seeder {
	return &Seeder{
		users:      repository.NewUserRepository(db),
		categories: repository.NewCategoryRepository(db),
		products:   repository.NewProductRepository(db),
		variants:   repository.NewVariantRepository(db),
		logger:     logger,
	}
}

// Run is safe to call repeatedly.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.seedAdmin(ctx); err != nil {
		return err
	}

	categoryIDs, err := s.seedCategories(ctx)
	if err != nil {
		return err
	}

	created := 0
	for _, p := range products {
		ok, err := s.seedProduct(ctx, p, categoryIDs)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}

	s.logger.Info("Seed complete",
		zap.String("admin", AdminEmail),
		zap.Int("categories", len(categoryIDs)),
		zap.Int("products_created", created),
	)
	return nil
}

// SeedIfEmpty runs the seed only on a database without an admin account and
// without products. It reports whether the seed ran.
func (s *Seeder) SeedIfEmpty(ctx context.Context) (bool, error) {
	if _, err := s.users.FindByEmail(ctx, AdminEmail); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}

	count, err := s.products.CountActive(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	return true, s.Run(ctx)
}

func (s *Seeder) seedAdmin(ctx context.Context) error {
	if _, err := s.users.FindByEmail(ctx, AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := &domain.User{
		ID:           uuid.New(),
		Name:         "Administrador",
		Email:        AdminEmail,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// seedCategories returns the id of every seeded category keyed by slug.
func (s *Seeder) seedCategories(ctx context.Context) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID)

	for i, c := range rootCategories {
		id, err := s.ensureCategory(ctx, c, uuid.NullUUID{}, i)
		if err != nil {
			return nil, err
		}
		ids[c.slug] = id
	}

	parent := uuid.NullUUID{UUID: ids["personagens"], Valid: true}
	for i, c := range characterCategories {
		id, err := s.ensureCategory(ctx, c, parent, i)
		if err != nil {
			return nil, err
		}
		ids[c.slug] = id
	}

	return ids, nil
}

func (s *Seeder) ensureCategory(ctx context.Context, c categorySeed, parent uuid.NullUUID, order int) (uuid.UUID, error) {
	existing, err := s.categories.FindBySlug(ctx, c.slug)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, repository.ErrCategoryNotFound) {
		return uuid.Nil, fmt.Errorf("failed to look up category %s: %w", c.slug, err)
	}

	category := &domain.Category{
		ID:          uuid.New(),
		Name:        c.name,
		Slug:        c.slug,
		ParentID:    parent,
		Description: c.description,
		Active:      true,
		SortOrder:   order,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create category %s: %w", c.slug, err)
	}
	return category.ID, nil
}

func (s *Seeder) seedProduct(ctx context.Context, p productSeed, categoryIDs map[string]uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	product := &domain.Product{
		ID:             uuid.New(),
		Name:           p.name,
		Slug:           p.slug,
		Description:    p.description,
		Price:          decimal.RequireFromString(p.price),
		Stock:          p.stock,
		TrackInventory: true,
		Active:         true,
		Featured:       p.featured,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.comparePrice != "" {
		product.ComparePrice = decimal.NewNullDecimal(decimal.RequireFromString(p.comparePrice))
	}

	var links []uuid.UUID
	if id, ok := categoryIDs[p.category]; ok {
		links = append(links, id)
	}

	if err := s.products.Create(ctx, product, links); err != nil {
		if errors.Is(err, repository.ErrProductSlugTaken) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create product %s: %w", p.slug, err)
	}

	// Variant stock splits the product stock evenly, rounding down.
	for _, v := range p.variants {
		variant := &domain.ProductVariant{
			ID:              uuid.New(),
			ProductID:       product.ID,
			Name:            v.name,
			Value:           v.value,
			PriceAdjustment: decimal.Zero,
			Stock:           p.stock / len(p.variants),
			Active:          true,
			CreatedAt:       now,
		}
		if err := s.variants.Create(ctx, variant); err != nil {
			return false, fmt.Errorf("failed to create variant %s/%s: %w", p.slug, v.value, err)
		}
	}

	return true, nil
}
