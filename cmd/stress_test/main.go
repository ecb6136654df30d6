package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/glowora/cart-core/internal/adapter/storage"
	"github.com/glowora/cart-core/internal/core/cache"
	"github.com/glowora/cart-core/internal/core/domain"
	"github.com/glowora/cart-core/internal/core/service"
)

const (
	redisAddr   = "localhost:6379"
	totalUsers  = 50
	addsPerUser = 5
)

// staticCatalog serves a fixed product list so the exerciser only needs Redis.
type staticCatalog struct {
	products map[string]domain.Product
}

func (c *staticCatalog) FindActiveProductByID(ctx context.Context, id string) (*domain.Product, error) {
	if p, ok := c.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (c *staticCatalog) FindPrimaryImageURL(ctx context.Context, productID string) (string, error) {
	return "", nil
}

type noCoupons struct{}

func (noCoupons) FindActiveCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return nil, nil
}

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	keys, _ := rdb.Keys(ctx, "cart:stress-user-*").Result()
	for _, k := range keys {
		rdb.Del(ctx, k)
	}

	catalog := &staticCatalog{products: map[string]domain.Product{
		"rose-serum":    {ID: "rose-serum", Name: "Rose Serum", Price: 79.90, StockQuantity: 1000, Brand: "Glowora"},
		"clay-mask":     {ID: "clay-mask", Name: "Clay Mask", Price: 34.50, StockQuantity: 1000, Brand: "Glowora"},
		"night-cream":   {ID: "night-cream", Name: "Night Cream", Price: 120.00, StockQuantity: 1000, Brand: "Glowora"},
		"lip-balm":      {ID: "lip-balm", Name: "Lip Balm", Price: 12.00, StockQuantity: 1000, Brand: "Glowora"},
		"vitamin-c-set": {ID: "vitamin-c-set", Name: "Vitamin C Set", Price: 240.00, StockQuantity: 1000, Brand: "Glowora"},
	}}
	productIDs := []string{"rose-serum", "clay-mask", "night-cream", "lip-balm", "vitamin-c-set"}

	kv := cache.New(storage.NewRedisAdapter(rdb), time.Minute)
	defer kv.Close()

	carts := service.NewCartService(kv, catalog, service.NewCouponValidator(noCoupons{}), time.Hour)

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent cart sessions
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalUsers; i++ {
		wg.Add(1)
		go func(userIdx int) {
			defer wg.Done()

			userID := fmt.Sprintf("stress-user-%d", userIdx)
			for j := 0; j < addsPerUser; j++ {
				productID := productIDs[(userIdx+j)%len(productIDs)]
				if _, err := carts.AddItem(ctx, userID, productID, 1); err != nil {
					failCount.Add(1)
				} else {
					successCount.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Verify the totals invariant on every cart
	var invariantViolations int
	for i := 0; i < totalUsers; i++ {
		cart, err := carts.GetCart(ctx, fmt.Sprintf("stress-user-%d", i))
		if err != nil {
			invariantViolations++
			continue
		}
		t := cart.Totals
		if math.Abs(t.Total-(t.Subtotal-t.Discount+t.Shipping+t.Tax)) > 0.01 {
			invariantViolations++
		}
		for _, item := range cart.Items {
			if math.Abs(item.TotalPrice-item.Price*float64(item.Quantity)) > 0.01 {
				invariantViolations++
			}
		}
	}

	stats := kv.Stats()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Users:                %d\n", totalUsers)
	fmt.Printf("Adds per user:        %d\n", addsPerUser)
	fmt.Printf("Successful adds:      %d\n", successCount.Load())
	fmt.Printf("Failed adds:          %d\n", failCount.Load())
	fmt.Printf("Duration:             %v\n", elapsed)
	fmt.Printf("Cache hits/misses:    %d/%d\n", stats.Hits, stats.Misses)
	fmt.Printf("Cache sets:           %d\n", stats.Sets)
	fmt.Printf("Cache errors:         %d\n", stats.Errors)
	fmt.Println("==========================================")

	if failCount.Load() == 0 && invariantViolations == 0 {
		fmt.Println("PASS: all adds succeeded and every cart satisfies the totals invariant")
	} else {
		fmt.Printf("FAIL: %d failed adds, %d invariant violations\n", failCount.Load(), invariantViolations)
	}

	// Cleanup
	keys, _ = rdb.Keys(ctx, "cart:stress-user-*").Result()
	for _, k := range keys {
		rdb.Del(ctx, k)
	}
}
