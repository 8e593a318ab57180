//go:build integration

package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop/migrations"
	"workshop/pkg/config"
	"workshop/pkg/database"
)

// Запуск: INTEGRATION_TESTS=1 POSTGRES_HOST=... go test -tags integration ./...
func requirePostgres(t *testing.T) *database.PostgresDB {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("skipping integration test; set INTEGRATION_TESTS=1 to run")
	}

	port, _ := strconv.Atoi(envOr("POSTGRES_PORT", "5433"))
	cfg := &config.DatabaseConfig{
		Driver:          "postgres",
		Host:            envOr("POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOr("POSTGRES_DB", "workshop_test"),
		Username:        envOr("POSTGRES_USER", "postgres"),
		Password:        envOr("POSTGRES_PASSWORD", "postgres"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, cfg, config.RetryConfig{MaxAttempts: 2, InitialBackoff: 100 * time.Millisecond})
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(db.Close)

	_, err = database.NewMigrator(db.Pool(), migrations.PostgresMigrations, migrations.PostgresDir).Up(ctx)
	require.NoError(t, err)
	return db
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func randomSuffix(t *testing.T) string {
	t.Helper()
	b := make([]byte, 4)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return hex.EncodeToString(b)
}

// seed заполняет данные в 1999 году, чтобы не пересекаться с другими прогонами
func seed(t *testing.T, db *database.PostgresDB, suffix string) {
	t.Helper()
	ctx := context.Background()

	var customerID, mechanicID, orderID, invoiceID, partID int64
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO customers (full_name) VALUES ($1) RETURNING id`, "Ann "+suffix).Scan(&customerID))
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO mechanics (full_name, hourly_rate) VALUES ($1, 40) RETURNING id`, "Bob "+suffix).Scan(&mechanicID))
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO parts (sku, name, category, quantity, reorder_level, unit_price, created_at)
		 VALUES ($1, 'Brake Pad', 'Brakes', 1, 4, 25.50, '1999-01-01') RETURNING id`, "BP-"+suffix).Scan(&partID))
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO work_orders (customer_id, mechanic_id, status, opened_at, closed_at, labor_hours, labor_total, parts_total)
		 VALUES ($1, $2, 'COMPLETED', '1999-03-10 09:00Z', '1999-03-10 15:00Z', 3, 120, 51) RETURNING id`,
		customerID, mechanicID).Scan(&orderID))
	require.NoError(t, db.QueryRow(ctx,
		`INSERT INTO invoices (number, work_order_id, customer_id, issued_at, parts_amount, labor_amount, tax_amount, total_amount)
		 VALUES ($1, $2, $3, '1999-03-10 16:00Z', 51, 120, 17.10, 188.10) RETURNING id`,
		"INV-"+suffix, orderID, customerID).Scan(&invoiceID))
	_, err := db.Exec(ctx,
		`INSERT INTO invoice_lines (invoice_id, part_id, description, quantity, unit_price) VALUES ($1, $2, 'Brake Pad', 2, 25.50)`,
		invoiceID, partID)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, invoiceID)
		_, _ = db.Exec(ctx, `DELETE FROM work_orders WHERE id = $1`, orderID)
		_, _ = db.Exec(ctx, `DELETE FROM parts WHERE id = $1`, partID)
		_, _ = db.Exec(ctx, `DELETE FROM mechanics WHERE id = $1`, mechanicID)
		_, _ = db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	})
}

func TestPostgresRepository_Integration(t *testing.T) {
	db := requirePostgres(t)
	suffix := randomSuffix(t)
	seed(t, db, suffix)

	repo := NewPostgresRepository(db, WithQueryTimeout(5*time.Second))
	ctx := context.Background()
	start := time.Date(1999, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(1999, 3, 31, 23, 59, 59, 0, time.UTC)

	require.NoError(t, repo.Ping(ctx))

	t.Run("inventory as of date", func(t *testing.T) {
		items, err := repo.InventoryStock(ctx, time.Date(1999, 6, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Contains(t, items, StockItem{
			SKU: "BP-" + suffix, Name: "Brake Pad", Category: "Brakes",
			Quantity: 1, ReorderLevel: 4, UnitPrice: 25.5,
		})
	})

	t.Run("low stock", func(t *testing.T) {
		items, err := repo.LowStock(ctx, 0)
		require.NoError(t, err)
		var found bool
		for _, it := range items {
			if it.SKU == "BP-"+suffix {
				found = true
				assert.Equal(t, 3, it.Shortfall(0))
			}
		}
		assert.True(t, found)
	})

	t.Run("sales", func(t *testing.T) {
		sales, err := repo.Sales(ctx, start, end)
		require.NoError(t, err)
		var got *SaleRecord
		for i := range sales {
			if sales[i].InvoiceNumber == "INV-"+suffix {
				got = &sales[i]
			}
		}
		require.NotNil(t, got)
		assert.Equal(t, int64(2), got.Items)
		assert.InDelta(t, 188.10, got.TotalAmount, 0.001)
	})

	t.Run("work orders and mechanics", func(t *testing.T) {
		orders, err := repo.WorkOrders(ctx, start, end)
		require.NoError(t, err)
		var closed bool
		for _, o := range orders {
			if o.Customer == "Ann "+suffix {
				closed = o.ClosedAt != nil
				assert.InDelta(t, 171.0, o.Total, 0.001)
			}
		}
		assert.True(t, closed)

		stats, err := repo.MechanicPerformance(ctx, start, end)
		require.NoError(t, err)
		var stat *MechanicStat
		for i := range stats {
			if stats[i].Mechanic == "Bob "+suffix {
				stat = &stats[i]
			}
		}
		require.NotNil(t, stat)
		assert.Equal(t, int64(1), stat.OrdersCompleted)
		assert.InDelta(t, 3.0, stat.AvgHours(), 0.001)
	})

	t.Run("daily revenue", func(t *testing.T) {
		days, err := repo.DailyRevenue(ctx, start, end, "UTC")
		require.NoError(t, err)
		var total float64
		for _, d := range days {
			if d.Day.Day() == 10 {
				total = d.TotalAmount
			}
		}
		assert.GreaterOrEqual(t, total, 188.10)
	})
}
