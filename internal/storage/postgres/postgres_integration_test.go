//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/restaurant-orders/internal/domain/auth"
	"github.com/xenking/restaurant-orders/internal/domain/cart"
	"github.com/xenking/restaurant-orders/internal/domain/menu"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orders",
				"POSTGRES_PASSWORD": "orders",
				"POSTGRES_DB":       "orders",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mapped port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://orders:orders@%s:%s/orders?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		return 1
	}

	return m.Run()
}

func seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	err := NewMenuRepository(testPool).Upsert(ctx, []menu.Item{
		{ID: "koshari", Name: "Koshari", Price: decimal.RequireFromString("100.00"), Category: menu.CategoryMeal, Available: true, Rating: 4.5},
		{ID: "tea", Name: "Tea", Price: decimal.RequireFromString("15.50"), Category: menu.CategoryDrink, Available: true},
	})
	require.NoError(t, err)

	err = NewOfferRepository(testPool).Upsert(ctx, []offer.Offer{
		{ID: "lunch", Title: "Lunch", DiscountPercent: 20, MenuItemIDs: []string{"koshari"}, Active: true},
		{ID: "old", Title: "Old", DiscountPercent: 50, MenuItemIDs: []string{"koshari"}, Active: false},
	})
	require.NoError(t, err)
}

func TestMenuRepository(t *testing.T) {
	seedCatalog(t)
	repo := NewMenuRepository(testPool)
	ctx := context.Background()

	item, err := repo.GetByID(ctx, "koshari")
	require.NoError(t, err)
	assert.Equal(t, "Koshari", item.Name)
	assert.True(t, decimal.RequireFromString("100").Equal(item.Price))
	assert.Equal(t, menu.CategoryMeal, item.Category)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, menu.ErrNotFound)

	items, err := repo.GetByIDs(ctx, []string{"koshari", "tea", "missing"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Subset(t, ids, []string{"koshari", "tea"})
}

func TestOfferRepository_FindActiveByMenuItem(t *testing.T) {
	seedCatalog(t)
	repo := NewOfferRepository(testPool)

	offers, err := repo.FindActiveByMenuItem(context.Background(), "koshari")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "lunch", offers[0].ID)
	assert.Equal(t, []string{"koshari"}, offers[0].MenuItemIDs)

	offers, err = repo.FindActiveByMenuItem(context.Background(), "tea")
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestCartRepository_VersionCheck(t *testing.T) {
	repo := NewCartRepository(testPool)
	ctx := context.Background()
	userID := "cart-user-" + t.Name()

	c, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	stale, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	c.Lines = []cart.Line{{
		MenuItemID:      "koshari",
		Quantity:        2,
		PriceAtAddition: decimal.RequireFromString("80"),
		OriginalPrice:   decimal.RequireFromString("100"),
		DiscountApplied: 20,
	}}
	require.NoError(t, repo.Save(ctx, c))
	assert.Equal(t, stale.Version+1, c.Version)

	stale.Lines = nil
	assert.ErrorIs(t, repo.Save(ctx, stale), cart.ErrVersionConflict)

	got, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("80").Equal(got.Lines[0].PriceAtAddition))
}

func TestCartRepository_ConcurrentGetOrCreate(t *testing.T) {
	repo := NewCartRepository(testPool)

	// Fresh users each round so every round races on the first insert.
	for round := range 20 {
		userID := fmt.Sprintf("cart-race-%s-%d", t.Name(), round)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make(chan error, 8)
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := repo.GetOrCreate(context.Background(), userID)
				errs <- err
			}()
		}
		close(start)
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	}
}

func newTestOrder(id, userID string, status order.Status, expiresAt *time.Time) *order.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &order.Order{
		ID:     id,
		UserID: userID,
		Lines: []order.Line{{
			MenuItemID:      "koshari",
			Name:            "Koshari",
			Quantity:        1,
			PriceAtPurchase: decimal.RequireFromString("80"),
			OriginalPrice:   decimal.RequireFromString("100"),
			DiscountApplied: 20,
		}},
		Total:         decimal.RequireFromString("80"),
		Status:        status,
		PaymentMethod: order.PaymentCard,
		Customer: order.Customer{
			FullName:        "Mona Adel",
			Email:           "mona@example.com",
			DeliveryAddress: "12 Tahrir Square, Cairo",
			PhoneNumber:     "+201001234567",
		},
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_CreateClearsCart(t *testing.T) {
	orders := NewOrderRepository(testPool)
	carts := NewCartRepository(testPool)
	ctx := context.Background()
	userID := "order-user-" + t.Name()

	c, err := carts.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	c.Lines = []cart.Line{{MenuItemID: "koshari", Quantity: 1, PriceAtAddition: decimal.NewFromInt(80), OriginalPrice: decimal.NewFromInt(100)}}
	require.NoError(t, carts.Save(ctx, c))

	o := newTestOrder("ord-"+t.Name(), userID, order.StatusConfirmed, nil)
	require.NoError(t, orders.CreateAndClearCart(ctx, o, c.Version))

	got, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Equal(t, o.Customer, got.Customer)
	require.Len(t, got.Lines, 1)
	assert.True(t, decimal.NewFromInt(80).Equal(got.Lines[0].PriceAtPurchase))
	assert.Nil(t, got.ExpiresAt)

	after, err := carts.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, after.Lines)
	assert.Greater(t, after.Version, c.Version)
}

func TestOrderRepository_CreateRejectsStaleCart(t *testing.T) {
	orders := NewOrderRepository(testPool)
	carts := NewCartRepository(testPool)
	ctx := context.Background()
	userID := "order-user-" + t.Name()

	read, err := carts.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	read.Lines = []cart.Line{{MenuItemID: "koshari", Quantity: 1, PriceAtAddition: decimal.NewFromInt(80), OriginalPrice: decimal.NewFromInt(100)}}
	require.NoError(t, carts.Save(ctx, read))

	// A concurrent add lands after checkout read the cart.
	writer, err := carts.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	writer.Lines = append(writer.Lines, cart.Line{MenuItemID: "tea", Quantity: 1, PriceAtAddition: decimal.NewFromInt(25), OriginalPrice: decimal.NewFromInt(25)})
	require.NoError(t, carts.Save(ctx, writer))

	o := newTestOrder("ord-"+t.Name(), userID, order.StatusConfirmed, nil)
	assert.ErrorIs(t, orders.CreateAndClearCart(ctx, o, read.Version), cart.ErrVersionConflict)

	_, err = orders.Get(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrNotFound, "order insert must roll back")

	after, err := carts.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, after.Lines, 2)
	assert.Equal(t, writer.Version, after.Version)
}

func TestOrderRepository_PaymentSession(t *testing.T) {
	orders := NewOrderRepository(testPool)
	ctx := context.Background()

	o := newTestOrder("ord-"+t.Name(), "u1", order.StatusPending, nil)
	require.NoError(t, orders.Create(ctx, o))
	require.NoError(t, orders.AttachPaymentSession(ctx, o.ID, "cs_"+t.Name()))

	got, err := orders.GetByPaymentSession(ctx, "cs_"+t.Name())
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	assert.ErrorIs(t, orders.AttachPaymentSession(ctx, "missing", "cs_x"), order.ErrNotFound)
	_, err = orders.GetByPaymentSession(ctx, "cs_missing")
	assert.ErrorIs(t, err, order.ErrNotFound)

	require.NoError(t, orders.Delete(ctx, o.ID))
	_, err = orders.Get(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_UpdateStatusConditional(t *testing.T) {
	orders := NewOrderRepository(testPool)
	ctx := context.Background()

	o := newTestOrder("ord-"+t.Name(), "u2", order.StatusPending, nil)
	require.NoError(t, orders.Create(ctx, o))

	o.Status = order.StatusConfirmed
	o.UpdatedAt = time.Now().UTC()
	require.NoError(t, orders.UpdateStatus(ctx, o, order.StatusPending, false))

	o.Status = order.StatusCancelled
	err := orders.UpdateStatus(ctx, o, order.StatusPending, false)
	assert.ErrorIs(t, err, order.ErrStatusChanged)

	got, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestOrderRepository_ExpireOverdue(t *testing.T) {
	orders := NewOrderRepository(testPool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	overdue := newTestOrder("ord-overdue-"+t.Name(), "u3", order.StatusPending, &past)
	fresh := newTestOrder("ord-fresh-"+t.Name(), "u3", order.StatusPending, &future)
	require.NoError(t, orders.Create(ctx, overdue))
	require.NoError(t, orders.Create(ctx, fresh))

	n, err := orders.ExpireOverdue(ctx, now, order.ExpiryCancel)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	got, err := orders.Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Nil(t, got.ExpiresAt)

	got, err = orders.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)

	cancelled := newTestOrder("ord-cancelled-"+t.Name(), "u3", order.StatusCancelled, &past)
	require.NoError(t, orders.Create(ctx, cancelled))

	_, err = orders.ExpireOverdue(ctx, now, order.ExpiryDelete)
	require.NoError(t, err)
	_, err = orders.Get(ctx, cancelled.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestAPIKeyRepository(t *testing.T) {
	repo := NewAPIKeyRepository(testPool)
	ctx := context.Background()

	hash := auth.HashAPIKey([]byte("pepper"), "secret-key")
	require.NoError(t, repo.Upsert(ctx, auth.APIKeyInfo{ID: "admin", KeyHash: hash, Name: "Admin", Scopes: []string{"orders:read"}}))

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "admin", info.ID)
	assert.True(t, info.HasScope("orders:read"))

	_, err = repo.FindByHash(ctx, "nope")
	assert.Error(t, err)
}
