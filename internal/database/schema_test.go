package database

import (
	"io/fs"
	"strings"
	"testing"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	content, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+name)
	if err != nil {
		t.Fatalf("Failed to read migration file %s: %v", name, err)
	}
	return string(content)
}

func TestMigrationFilesExist(t *testing.T) {
	expectedMigrations := []string{
		"00001_create_users_table.sql",
		"00002_create_categories_table.sql",
		"00003_create_products_table.sql",
		"00004_create_deals_table.sql",
		"00005_create_deal_participants_table.sql",
		"00006_create_updated_at_trigger.sql",
	}

	for _, migration := range expectedMigrations {
		if _, err := fs.Stat(migrationsFS, migrationsDir+"/"+migration); err != nil {
			t.Errorf("Migration file %s is not embedded: %v", migration, err)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		contentStr := readMigration(t, file.Name())

		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			if !strings.Contains(contentStr, directive) {
				t.Errorf("Migration file %s missing '%s' directive", file.Name(), directive)
			}
		}

		if strings.Count(contentStr, "-- +goose StatementBegin") != strings.Count(contentStr, "-- +goose StatementEnd") {
			t.Errorf("Migration file %s has unbalanced statement blocks", file.Name())
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	expectedTables := map[string]string{
		"users":             "00001_create_users_table.sql",
		"categories":        "00002_create_categories_table.sql",
		"products":          "00003_create_products_table.sql",
		"deals":             "00004_create_deals_table.sql",
		"deal_participants": "00005_create_deal_participants_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		contentStr := readMigration(t, migrationFile)

		if !strings.Contains(contentStr, "CREATE TABLE IF NOT EXISTS "+tableName+" (") {
			t.Errorf("Migration file %s does not create table %s", migrationFile, tableName)
		}
		if !strings.Contains(contentStr, "DROP TABLE IF EXISTS "+tableName+";") {
			t.Errorf("Migration file %s does not drop table %s in down section", migrationFile, tableName)
		}
	}
}

func TestDealsTableEnforcesInvariants(t *testing.T) {
	contentStr := readMigration(t, "00004_create_deals_table.sql")

	requiredConstraints := []string{
		"current_participants >= 0 AND current_participants <= max_participants",
		"min_participants >= 1 AND min_participants <= max_participants",
		"jam3a_price > 0 AND jam3a_price < regular_price",
		"status <> 'active' OR current_participants < max_participants",
		"CONSTRAINT deals_code_key UNIQUE (code)",
		"FOREIGN KEY (category_id)",
	}
	for _, constraint := range requiredConstraints {
		if !strings.Contains(contentStr, constraint) {
			t.Errorf("Deals table missing constraint: %s", constraint)
		}
	}

	for _, status := range []string{"pending", "active", "completed", "cancelled", "expired"} {
		if !strings.Contains(contentStr, "'"+status+"'") {
			t.Errorf("Deals status constraint missing value: %s", status)
		}
	}
}

func TestParticipantsTableHasCompositeKey(t *testing.T) {
	contentStr := readMigration(t, "00005_create_deal_participants_table.sql")

	if !strings.Contains(contentStr, "PRIMARY KEY (deal_id, user_id)") {
		t.Error("Deal participants table missing primary key on (deal_id, user_id)")
	}
}

func TestProductsTableRejectsNegativeStock(t *testing.T) {
	contentStr := readMigration(t, "00003_create_products_table.sql")

	if !strings.Contains(contentStr, "CHECK (stock >= 0)") {
		t.Error("Products table missing non-negative stock constraint")
	}
}
