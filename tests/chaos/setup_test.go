//go:build chaos

// Package chaos contains chaos-engineering tests for extreme input
// handling, database resilience under connection-pool pressure, and
// transaction/compensation edge cases. Like tests/integration and
// tests/stress, this suite is self-contained via ory/dockertest
// instead of depending on a running docker-compose server: the HTTP
// surface is exercised in-process through fiber's app.Test against
// handlers wired to a real Postgres instance, which is what actually
// stresses row locking and connection-pool behavior.
package chaos

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/lock"
)

var (
	testPool    *pgxpool.Pool
	databaseURL string
)

// inMemoryLocker stands in for lock.RedisLocker: real Redis is not
// spun up for this suite since the KV-lock's own correctness is
// already covered at the unit level in internal/lock.
type inMemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newInMemoryLocker() *inMemoryLocker { return &inMemoryLocker{held: map[string]bool{}} }

func (l *inMemoryLocker) TryAcquire(ctx context.Context, key string, wait, lease time.Duration) (lock.Handle, error) {
	deadline := time.Now().Add(wait)
	for {
		l.mu.Lock()
		if !l.held[key] {
			l.held[key] = true
			l.mu.Unlock()
			return &inMemoryHandle{locker: l, key: key}, nil
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, lock.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

type inMemoryHandle struct {
	locker *inMemoryLocker
	key    string
}

func (h *inMemoryHandle) Release(ctx context.Context) {
	h.locker.mu.Lock()
	delete(h.locker.held, h.key)
	h.locker.mu.Unlock()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	user_id    VARCHAR(255) PRIMARY KEY,
	balance    BIGINT NOT NULL CHECK (balance >= 0),
	version    BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS product_options (
	option_id  VARCHAR(255) PRIMARY KEY,
	product_id VARCHAR(255) NOT NULL,
	stock      INTEGER NOT NULL CHECK (stock >= 0),
	version    BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS coupons (
	coupon_id       VARCHAR(255) PRIMARY KEY,
	discount_type   VARCHAR(32) NOT NULL,
	discount_amount BIGINT NOT NULL DEFAULT 0,
	discount_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_qty       INTEGER NOT NULL CHECK (total_qty >= 0),
	remaining_qty   INTEGER NOT NULL CHECK (remaining_qty >= 0),
	valid_from      TIMESTAMPTZ NOT NULL,
	valid_until     TIMESTAMPTZ NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	version         BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_coupons (
	user_coupon_id VARCHAR(255) PRIMARY KEY,
	user_id        VARCHAR(255) NOT NULL,
	coupon_id      VARCHAR(255) NOT NULL REFERENCES coupons(coupon_id),
	status         VARCHAR(32) NOT NULL,
	issued_at      TIMESTAMPTZ NOT NULL,
	used_at        TIMESTAMPTZ,
	UNIQUE(user_id, coupon_id)
);

CREATE TABLE IF NOT EXISTS orders (
	order_id        VARCHAR(255) PRIMARY KEY,
	user_id         VARCHAR(255) NOT NULL,
	status          VARCHAR(32) NOT NULL,
	coupon_id       VARCHAR(255),
	subtotal        BIGINT NOT NULL,
	coupon_discount BIGINT NOT NULL DEFAULT 0,
	final_amount    BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	cancelled_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS order_items (
	order_item_id VARCHAR(255) PRIMARY KEY,
	order_id      VARCHAR(255) NOT NULL REFERENCES orders(order_id),
	product_id    VARCHAR(255) NOT NULL,
	option_id     VARCHAR(255) NOT NULL,
	product_name  VARCHAR(255) NOT NULL DEFAULT '',
	option_name   VARCHAR(255) NOT NULL DEFAULT '',
	quantity      INTEGER NOT NULL,
	unit_price    BIGINT NOT NULL,
	subtotal      BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox_messages (
	message_id   VARCHAR(255) PRIMARY KEY,
	order_id     VARCHAR(255) NOT NULL DEFAULT '',
	user_id      VARCHAR(255) NOT NULL DEFAULT '',
	message_type VARCHAR(64) NOT NULL,
	payload      BYTEA NOT NULL,
	status       VARCHAR(32) NOT NULL,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	last_attempt TIMESTAMPTZ,
	sent_at      TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS failed_compensations (
	id               VARCHAR(255) PRIMARY KEY,
	order_id         VARCHAR(255),
	user_id          VARCHAR(255) NOT NULL,
	step_name        VARCHAR(255) NOT NULL,
	step_order       INTEGER NOT NULL,
	error_message    TEXT NOT NULL,
	stack_trace      TEXT NOT NULL DEFAULT '',
	failed_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	retry_count      INTEGER NOT NULL DEFAULT 0,
	status           VARCHAR(32) NOT NULL,
	context_snapshot BYTEA
);
`

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}
	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_USER=testuser",
			"POSTGRES_DB=testdb",
			"listen_addresses='*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}
	_ = resource.Expire(180)

	hostAndPort := resource.GetHostPort("5432/tcp")
	databaseURL = fmt.Sprintf("postgres://testuser:testpass@%s/testdb?sslmode=disable", hostAndPort)
	log.Println("Connecting to database on url:", databaseURL)

	pool.MaxWait = 120 * time.Second
	if err = pool.Retry(func() error {
		var err error
		testPool, err = pgxpool.New(context.Background(), databaseURL)
		if err != nil {
			return err
		}
		return testPool.Ping(context.Background())
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	if _, err := testPool.Exec(context.Background(), schemaSQL); err != nil {
		log.Fatalf("Could not run schema migration: %s", err)
	}

	code := m.Run()

	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}
	os.Exit(code)
}

func cleanupTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		"TRUNCATE TABLE order_items, orders, user_coupons, coupons, outbox_messages, failed_compensations, product_options, users CASCADE")
	if err != nil {
		t.Fatalf("Failed to cleanup tables: %v", err)
	}
}

func seedUser(t *testing.T, userID string, balance int64) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO users (user_id, balance, version) VALUES ($1, $2, 0)`, userID, balance)
	if err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
}

func seedProductOption(t *testing.T, optionID, productID string, stock int) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO product_options (option_id, product_id, stock, version) VALUES ($1, $2, $3, 0)`,
		optionID, productID, stock)
	if err != nil {
		t.Fatalf("Failed to seed product option: %v", err)
	}
}

func seedCoupon(t *testing.T, couponID string, totalQty int, discountAmount int64) {
	t.Helper()
	now := time.Now().UTC()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO coupons (coupon_id, discount_type, discount_amount, discount_rate, total_qty, remaining_qty, valid_from, valid_until, is_active, version)
		 VALUES ($1, 'FIXED_AMOUNT', $2, 0, $3, $3, $4, $5, TRUE, 0)`,
		couponID, discountAmount, totalQty, now.Add(-time.Hour), now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to seed coupon: %v", err)
	}
}

func userBalance(t *testing.T, userID string) int64 {
	t.Helper()
	var balance int64
	if err := testPool.QueryRow(context.Background(),
		`SELECT balance FROM users WHERE user_id = $1`, userID).Scan(&balance); err != nil {
		t.Fatalf("Failed to read user balance: %v", err)
	}
	return balance
}

func productStock(t *testing.T, optionID string) int {
	t.Helper()
	var stock int
	if err := testPool.QueryRow(context.Background(),
		`SELECT stock FROM product_options WHERE option_id = $1`, optionID).Scan(&stock); err != nil {
		t.Fatalf("Failed to read product stock: %v", err)
	}
	return stock
}

func couponRemainingQty(t *testing.T, couponID string) int {
	t.Helper()
	var qty int
	if err := testPool.QueryRow(context.Background(),
		`SELECT remaining_qty FROM coupons WHERE coupon_id = $1`, couponID).Scan(&qty); err != nil {
		t.Fatalf("Failed to read coupon remaining_qty: %v", err)
	}
	return qty
}

func userCouponCount(t *testing.T, couponID string) int {
	t.Helper()
	var count int
	if err := testPool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM user_coupons WHERE coupon_id = $1 AND status != 'FAILED'`, couponID).Scan(&count); err != nil {
		t.Fatalf("Failed to count user coupons: %v", err)
	}
	return count
}
