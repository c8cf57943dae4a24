package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"storebill/internal/caching"
	"storebill/internal/models"
	"storebill/internal/repositories"
)

const directoryCacheTTL = 10 * time.Minute

// DirectoryService is the read-only view of the customer/product directory,
// with a Redis cache in front of the repository lookups.
type DirectoryService interface {
	GetCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}

type directoryService struct {
	customerRepo repositories.CustomerRepository
	productRepo  repositories.ProductRepository
	cacheSvc     caching.CacheService
}

func NewDirectoryService(
	customerRepo repositories.CustomerRepository,
	productRepo repositories.ProductRepository,
	cacheSvc caching.CacheService,
) DirectoryService {
	return &directoryService{
		customerRepo: customerRepo,
		productRepo:  productRepo,
		cacheSvc:     cacheSvc,
	}
}

func (s *directoryService) GetCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	if cached, err := s.cacheSvc.GetCustomer(ctx, customerID); err == nil {
		return cached, nil
	} else if !errors.Is(err, caching.ErrCacheMiss) {
		log.Printf("WARN: customer cache read failed for %s: %v", customerID, err)
	}

	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if err := s.cacheSvc.SetCustomer(ctx, customer, directoryCacheTTL); err != nil {
		log.Printf("WARN: customer cache write failed for %s: %v", customerID, err)
	}
	return customer, nil
}

func (s *directoryService) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if cached, err := s.cacheSvc.GetProduct(ctx, productID); err == nil {
		return cached, nil
	} else if !errors.Is(err, caching.ErrCacheMiss) {
		log.Printf("WARN: product cache read failed for %s: %v", productID, err)
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := s.cacheSvc.SetProduct(ctx, product, directoryCacheTTL); err != nil {
		log.Printf("WARN: product cache write failed for %s: %v", productID, err)
	}
	return product, nil
}
