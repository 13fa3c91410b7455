package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/market-core/internal/adapter/storage"
	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/core/service"
	"github.com/rl1809/market-core/internal/port"
	"github.com/rl1809/market-core/internal/telemetry"
)

const sellerID = 1

func main() {
	os.Exit(run())
}

func run() int {
	driver := flag.String("driver", "sqlite", "store driver: sqlite or mysql")
	dsn := flag.String("dsn", "", "store DSN; a temporary SQLite file when empty")
	initialStock := flag.Int("stock", 20, "units of the contested product")
	totalRequests := flag.Int("requests", 50, "concurrent single-unit checkouts")
	flag.Parse()

	log := telemetry.NewLogger(os.Stderr, "stress-test", "warn")
	ctx := log.WithContext(context.Background())

	if *dsn == "" {
		dir, err := os.MkdirTemp("", "market-stress")
		if err != nil {
			log.Fatal().Err(err).Msg("create temp dir")
		}
		defer os.RemoveAll(dir)
		*dsn = filepath.Join(dir, "market.db")
	}

	dialect, err := storage.ParseDialect(*driver)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	store, err := storage.Open(ctx, dialect, *dsn, storage.PoolConfig{MaxOpenConns: 50})
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	rt := service.NewRuntime(store, port.SystemClock{}, nil,
		service.RetryPolicy{MaxAttempts: 20, InitialBackoff: 5 * time.Millisecond})
	c := service.NewComponents(rt, port.NopGuard{}, nil, service.DefaultCouponValidity)

	productID, err := c.Catalog.CreateProduct(ctx, sellerID, domain.NewProduct{
		Name:  "flash-sale-item",
		Price: decimal.NewFromInt(100),
		Stock: *initialStock,
		Type:  string(domain.CategorySmartphone),
		Attributes: mustRaw(map[string]any{
			"screen_size": 6.1, "os": "android", "storage": 128, "color": "black",
		}),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create product")
	}

	var successCount, soldOutCount, failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(buyerID int64) {
			defer wg.Done()

			_, err := c.Orders.Checkout(ctx, buyerID, domain.CheckoutRequest{
				Cart: []domain.CartLine{{ProductID: productID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case domain.IsKind(err, domain.KindInsufficientStock):
				soldOutCount.Add(1)
			default:
				failCount.Add(1)
				zerolog.Ctx(ctx).Error().Err(err).Int64("buyer_id", buyerID).Msg("checkout failed")
			}
		}(int64(i + 1000))
	}

	wg.Wait()
	elapsed := time.Since(start)

	success, soldOut, fail := successCount.Load(), soldOutCount.Load(), failCount.Load()
	expectedWins := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", dialect)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if int(success) == expectedWins && int(soldOut) == *totalRequests-expectedWins && fail == 0 {
		fmt.Printf("PASS: exactly %d orders succeeded, %d sold out\n", expectedWins, *totalRequests-expectedWins)
	} else {
		ok = false
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d (%d errors)\n",
			expectedWins, *totalRequests-expectedWins, success, soldOut, fail)
	}

	left, err := c.Inventory.Available(ctx, productID, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("read stock")
	}
	fmt.Printf("Final Stock:      %d\n", left)
	if left == *initialStock-expectedWins {
		fmt.Printf("PASS: stock settled at %d\n", left)
	} else {
		ok = false
		fmt.Printf("FAIL: expected stock %d, got %d\n", *initialStock-expectedWins, left)
	}

	if !ok {
		return 1
	}
	return 0
}

func mustRaw(in map[string]any) map[string]json.RawMessage {
	out, err := domain.RawAttributes(in)
	if err != nil {
		panic(err)
	}
	return out
}
