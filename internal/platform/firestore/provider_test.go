package firestore

import (
	"context"
	"errors"
	"testing"

	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/config"
)

func TestProviderCollectionName(t *testing.T) {
	plain := NewProvider(config.FirestoreConfig{ProjectID: "deleza"})
	if got := plain.CollectionName(" products "); got != "products" {
		t.Fatalf("expected unprefixed name, got %q", got)
	}

	preview := NewProvider(config.FirestoreConfig{ProjectID: "deleza", CollectionPrefix: " pr42_ "})
	if got := preview.CollectionName("orders"); got != "pr42_orders" {
		t.Fatalf("expected prefixed name, got %q", got)
	}

	var missing *Provider
	if got := missing.CollectionName("cart_items"); got != "cart_items" {
		t.Fatalf("nil provider should pass names through, got %q", got)
	}
}

func TestProviderClientRequiresProject(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	p := NewProvider(config.FirestoreConfig{})
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrMissingProject) {
		t.Fatalf("expected ErrMissingProject, got %v", err)
	}
}

func TestProviderClosed(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "deleza"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
