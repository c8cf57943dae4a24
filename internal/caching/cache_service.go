package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"storebill/internal/models"
)

// ErrCacheMiss is returned when a key is absent. Callers fall through to the
// underlying repository.
var ErrCacheMiss = errors.New("cache miss")

// CacheService fronts the read-only directory lookups and keeps a short-lived
// record of recently processed gateway event ids so webhook redelivery bursts
// rarely reach the database ledger.
type CacheService interface {
	// Directory caching
	GetCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error)
	SetCustomer(ctx context.Context, customer *models.Customer, ttl time.Duration) error
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	SetProduct(ctx context.Context, product *models.Product, ttl time.Duration) error

	// Event dedupe fast path. The BillingEvent table stays the source of
	// truth; this only short-circuits the common redelivery case.
	EventSeen(ctx context.Context, eventID string) (bool, error)
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func customerKey(customerID uuid.UUID) string {
	return fmt.Sprintf("directory:customer:%s", customerID)
}

func productKey(productID uuid.UUID) string {
	return fmt.Sprintf("directory:product:%s", productID)
}

func eventKey(eventID string) string {
	return fmt.Sprintf("billing:event:%s", eventID)
}

func (s *redisCacheService) GetCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	data, err := s.client.Get(ctx, customerKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	customer := &models.Customer{}
	if err := json.Unmarshal(data, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *redisCacheService) SetCustomer(ctx context.Context, customer *models.Customer, ttl time.Duration) error {
	data, err := json.Marshal(customer)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, customerKey(customer.ID), data, ttl).Err()
}

func (s *redisCacheService) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	data, err := s.client.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	product := &models.Product{}
	if err := json.Unmarshal(data, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *redisCacheService) SetProduct(ctx context.Context, product *models.Product, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, productKey(product.ID), data, ttl).Err()
}

func (s *redisCacheService) EventSeen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisCacheService) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	return s.client.Set(ctx, eventKey(eventID), "1", ttl).Err()
}
