// Package dbtest opens isolated in-memory sqlite databases carrying the
// marketplace schema for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		balance_cents INTEGER NOT NULL DEFAULT 0,
		earning_cents INTEGER NOT NULL DEFAULT 0,
		stripe_account_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE books (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		title TEXT NOT NULL,
		selling_price_cents INTEGER NOT NULL,
		for_donation BOOLEAN NOT NULL DEFAULT false,
		status TEXT NOT NULL DEFAULT 'available',
		sold_order_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE carts (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL UNIQUE,
		seller_groups TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		total_price_cents INTEGER NOT NULL,
		shipping_fee_cents INTEGER NOT NULL DEFAULT 0,
		discount_cents INTEGER NOT NULL DEFAULT 0,
		net_total_cents INTEGER NOT NULL,
		currency TEXT NOT NULL DEFAULT 'NPR',
		order_status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_method TEXT NOT NULL,
		gateway_reference TEXT,
		shipping_address TEXT NOT NULL,
		cancellation_message TEXT,
		paid_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE sub_orders (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		seller_id TEXT NOT NULL,
		delivery_price_cents INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		tracking_number TEXT,
		decision_message TEXT,
		decided_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (order_id, seller_id)
	)`,
	`CREATE TABLE order_lines (
		id TEXT PRIMARY KEY,
		sub_order_id TEXT NOT NULL REFERENCES sub_orders(id) ON DELETE CASCADE,
		order_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		title TEXT NOT NULL,
		unit_price_cents INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		platform_fee_cents INTEGER NOT NULL,
		seller_earnings_cents INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		gateway_reference TEXT NOT NULL UNIQUE,
		redirect_url TEXT,
		status TEXT NOT NULL DEFAULT 'initiated',
		raw_gateway_payload TEXT,
		resolved_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE platform_earnings (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		platform_fee_cents INTEGER NOT NULL,
		seller_earnings_cents INTEGER NOT NULL,
		earned_at DATETIME NOT NULL,
		created_at DATETIME,
		UNIQUE (transaction_id, seller_id)
	)`,
	`CREATE TABLE payouts (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_reference TEXT,
		expected_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
}

// Open returns a fresh database private to t with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and
	// serializes writers the way sqlite expects
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
