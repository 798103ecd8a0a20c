package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

// seedFile is the on-disk catalogue layout.
type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Price         string `yaml:"price"`
	PriceCents    *int64 `yaml:"price_cents"`
	ImageURL      string `yaml:"image_url"`
	Category      string `yaml:"category"`
	InStock       *bool  `yaml:"in_stock"`
	StockQuantity *int   `yaml:"stock_quantity"`
	Featured      bool   `yaml:"featured"`
}

func loadSeedFile(path string) ([]seedProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return parseSeed(data, path)
}

func parseSeed(data []byte, source string) ([]seedProduct, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", source, err)
	}

	seen := make(map[string]struct{}, len(file.Products))
	for i := range file.Products {
		entry := &file.Products[i]
		entry.ID = strings.TrimSpace(entry.ID)
		if entry.ID == "" {
			return nil, fmt.Errorf("seed: %s: product #%d has no id", source, i+1)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("seed: %s: duplicate product id %q", source, entry.ID)
		}
		seen[entry.ID] = struct{}{}
		if entry.PriceCents == nil && strings.TrimSpace(entry.Price) == "" {
			return nil, fmt.Errorf("seed: %s: product %q has no price", source, entry.ID)
		}
		if raw := strings.TrimSpace(entry.Category); raw != "" {
			if _, ok := domain.ParseCategory(raw); !ok {
				return nil, fmt.Errorf("seed: %s: product %q has unknown category %q", source, entry.ID, raw)
			}
		}
	}
	return file.Products, nil
}

func (p seedProduct) command() services.UpsertProductCommand {
	name := p.Name
	description := p.Description
	imageURL := p.ImageURL
	category := p.Category
	featured := p.Featured
	cmd := services.UpsertProductCommand{
		Name:        &name,
		Description: &description,
		ImageURL:    &imageURL,
		Category:    &category,
		Featured:    &featured,
	}
	if p.PriceCents != nil {
		cents := *p.PriceCents
		cmd.PriceCents = &cents
	} else {
		price := p.Price
		cmd.Price = &price
	}
	inStock := true
	if p.InStock != nil {
		inStock = *p.InStock
	}
	cmd.InStock = &inStock
	if p.StockQuantity != nil {
		quantity := *p.StockQuantity
		cmd.StockQuantity = &quantity
	}
	return cmd
}

type seedOutcome struct {
	Created int
	Updated int
}

// seeder upserts entries through the catalogue service so seeded products pass the same
// validation and sanitising as admin edits. Entries keep their file ids.
type seeder struct {
	catalog services.CatalogService
	nextID  *string
}

func (s seeder) apply(ctx context.Context, products []seedProduct) (seedOutcome, error) {
	var outcome seedOutcome
	for _, entry := range products {
		cmd := entry.command()
		_, err := s.catalog.UpdateProduct(ctx, entry.ID, cmd)
		switch {
		case err == nil:
			outcome.Updated++
			continue
		case !errors.Is(err, services.ErrCatalogNotFound):
			return outcome, fmt.Errorf("seed: update %s: %w", entry.ID, err)
		}

		*s.nextID = entry.ID
		if _, err := s.catalog.CreateProduct(ctx, cmd); err != nil {
			return outcome, fmt.Errorf("seed: create %s: %w", entry.ID, err)
		}
		outcome.Created++
	}
	return outcome, nil
}
