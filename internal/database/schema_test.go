package database

import (
	"io/fs"
	"path"
	"strings"
	"testing"
)

var expectedMigrations = []string{
	"00001_create_users_table.sql",
	"00002_create_refresh_tokens_table.sql",
	"00003_create_categories_table.sql",
	"00004_create_products_table.sql",
	"00005_create_product_categories_table.sql",
	"00006_create_product_variants_table.sql",
	"00007_create_product_images_table.sql",
	"00008_create_orders_table.sql",
	"00009_create_order_items_table.sql",
}

func readMigration(t *testing.T, dialect, name string) string {
	t.Helper()
	content, err := fs.ReadFile(migrationsFS, path.Join(migrationsDir(dialect), name))
	if err != nil {
		t.Fatalf("Failed to read migration %s/%s: %v", dialect, name, err)
	}
	return string(content)
}

func TestMigrationFilesExistForEveryDialect(t *testing.T) {
	for _, dialect := range []string{DialectSQLite, DialectPostgres} {
		entries, err := fs.ReadDir(migrationsFS, migrationsDir(dialect))
		if err != nil {
			t.Fatalf("Failed to read %s migrations: %v", dialect, err)
		}

		found := make(map[string]bool)
		for _, e := range entries {
			found[e.Name()] = true
		}

		for _, name := range expectedMigrations {
			if !found[name] {
				t.Errorf("%s migration %s does not exist", dialect, name)
			}
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	directives := []string{
		"-- +goose Up",
		"-- +goose Down",
		"-- +goose StatementBegin",
		"-- +goose StatementEnd",
	}

	for _, dialect := range []string{DialectSQLite, DialectPostgres} {
		for _, name := range expectedMigrations {
			content := readMigration(t, dialect, name)
			for _, d := range directives {
				if !strings.Contains(content, d) {
					t.Errorf("%s migration %s missing %q directive", dialect, name, d)
				}
			}
		}
	}
}

func TestMigrationFilesCreateAndDropTheirTable(t *testing.T) {
	for _, dialect := range []string{DialectSQLite, DialectPostgres} {
		for _, name := range expectedMigrations {
			table := strings.TrimSuffix(strings.TrimPrefix(name[6:], "create_"), "_table.sql")
			content := readMigration(t, dialect, name)

			if !strings.Contains(content, "CREATE TABLE "+table+" (") {
				t.Errorf("%s migration %s does not create table %s", dialect, name, table)
			}
			if !strings.Contains(content, "DROP TABLE IF EXISTS "+table) {
				t.Errorf("%s migration %s does not drop table %s", dialect, name, table)
			}
		}
	}
}

func TestPostgresMigrationsUseNativeTypes(t *testing.T) {
	users := readMigration(t, DialectPostgres, "00001_create_users_table.sql")
	for _, column := range []string{"id UUID PRIMARY KEY", "email VARCHAR(255) NOT NULL UNIQUE", "created_at TIMESTAMPTZ"} {
		if !strings.Contains(users, column) {
			t.Errorf("users table missing column definition: %s", column)
		}
	}

	products := readMigration(t, DialectPostgres, "00004_create_products_table.sql")
	for _, column := range []string{"slug VARCHAR(220) NOT NULL UNIQUE", "price NUMERIC(10, 2)", "compare_price NUMERIC(10, 2)"} {
		if !strings.Contains(products, column) {
			t.Errorf("products table missing column definition: %s", column)
		}
	}
}

func TestOrdersTableHasStatusConstraint(t *testing.T) {
	for _, dialect := range []string{DialectSQLite, DialectPostgres} {
		content := readMigration(t, dialect, "00008_create_orders_table.sql")
		for _, status := range []string{"pending", "processing", "shipped", "delivered", "cancelled", "paid", "refunded"} {
			if !strings.Contains(content, "'"+status+"'") {
				t.Errorf("%s orders table missing status value %s", dialect, status)
			}
		}
	}
}
