package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestConsumeLotsFIFODrawsOldestFirst(t *testing.T) {
	databaseURL := os.Getenv("AUTOCARE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set AUTOCARE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	code := fmt.Sprintf("FIFO-IT-%d", stamp)

	var productID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (code, name, unit, catalog_price_cents, cost_cents, stock_qty, active)
		VALUES ($1, 'Produto FIFO IT', 'UN', 5000, 3000, 10, true)
		RETURNING id
	`, code).Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_lots WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	older := time.Now().UTC().AddDate(0, -2, 0)
	newer := time.Now().UTC().AddDate(0, -1, 0)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_lots (product_id, lot_number, remaining_qty, sale_price_cents, cost_cents, entered_at, active)
		VALUES ($1, 'IT-OLD', 3, 4800, 2000, $2, true),
		       ($1, 'IT-NEW', 7, 5000, 3000, $3, true)
	`, productID, older, newer); err != nil {
		t.Fatalf("seed lots: %v", err)
	}

	// Drawing 5 units takes all 3 from the older lot plus 2 from the newer,
	// so the weighted average cost is (3*2000 + 2*3000) / 5.
	avgCost, err := s.ConsumeLotsFIFO(ctx, productID, 5)
	if err != nil {
		t.Fatalf("consume lots: %v", err)
	}
	if avgCost != 2400 {
		t.Fatalf("expected avg cost 2400, got %d", avgCost)
	}

	var oldRemaining, newRemaining int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT remaining_qty FROM inventory_lots WHERE product_id = $1 AND lot_number = 'IT-OLD'
	`, productID).Scan(&oldRemaining); err != nil {
		t.Fatalf("query old lot: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT remaining_qty FROM inventory_lots WHERE product_id = $1 AND lot_number = 'IT-NEW'
	`, productID).Scan(&newRemaining); err != nil {
		t.Fatalf("query new lot: %v", err)
	}
	if oldRemaining != 0 || newRemaining != 5 {
		t.Fatalf("expected remaining 0/5, got %d/%d", oldRemaining, newRemaining)
	}
}
