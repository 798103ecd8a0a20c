// Command catalog-seed loads a YAML product list into the Firestore catalogue. Existing
// products are updated in place; missing ones are created with the id from the file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/config"
	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/observability"
	firestoreRepo "github.com/PauloRGNDev/lovableshop-starter/internal/repositories/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

func main() {
	var (
		path    = flag.String("file", "catalog.yaml", "YAML file with the products to seed")
		dryRun  = flag.Bool("dry-run", false, "validate the file without writing")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("catalog-seed")

	products, err := loadSeedFile(*path)
	if err != nil {
		logger.Fatal("invalid seed file", zap.Error(err))
	}
	if *dryRun {
		logger.Info("seed file is valid", zap.String("file", *path), zap.Int("products", len(products)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var clientOpts []option.ClientOption
	if credentials := strings.TrimSpace(cfg.Firebase.CredentialsFile); credentials != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentials))
	}
	provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	repo, err := firestoreRepo.NewProductRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}

	var nextID string
	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    repo,
		Logger:      observability.NewEventLogger(logger),
		IDGenerator: func() string { return nextID },
	})
	if err != nil {
		logger.Fatal("failed to initialise catalogue service", zap.Error(err))
	}

	outcome, err := seeder{catalog: catalog, nextID: &nextID}.apply(ctx, products)
	if err != nil {
		logger.Fatal("seed failed",
			zap.Error(err),
			zap.Int("created", outcome.Created),
			zap.Int("updated", outcome.Updated),
		)
	}
	logger.Info("catalogue seeded",
		zap.String("file", *path),
		zap.Int("created", outcome.Created),
		zap.Int("updated", outcome.Updated),
	)
}
