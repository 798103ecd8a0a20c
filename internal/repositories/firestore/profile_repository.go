package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const profileCollection = "profiles"

// ProfileRepository stores one profile document per Firebase uid.
type ProfileRepository struct {
	profiles *pfirestore.Collection[profileDocument]
	now      func() time.Time
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository constructs a Firestore-backed profile repository.
func NewProfileRepository(provider *pfirestore.Provider) (*ProfileRepository, error) {
	if provider == nil {
		return nil, errors.New("profile repository requires firestore provider")
	}
	return &ProfileRepository{
		profiles: pfirestore.NewCollection[profileDocument](provider, profileCollection),
		now:      time.Now,
	}, nil
}

func (r *ProfileRepository) FindByID(ctx context.Context, userID string) (domain.Profile, error) {
	doc, err := r.profiles.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.Profile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the profile, normalising the email and stamping timestamps.
func (r *ProfileRepository) Upsert(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	id := strings.TrimSpace(profile.ID)
	if id == "" {
		return domain.Profile{}, errors.New("profile repository: id is required")
	}
	now := r.now().UTC()
	doc := profileDocument{
		FullName:  strings.TrimSpace(profile.FullName),
		Email:     strings.ToLower(strings.TrimSpace(profile.Email)),
		IsAdmin:   profile.IsAdmin,
		CreatedAt: profile.CreatedAt.UTC(),
		UpdatedAt: now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if _, err := r.profiles.Set(ctx, id, doc); err != nil {
		return domain.Profile{}, err
	}
	return doc.toDomain(id), nil
}

type profileDocument struct {
	FullName  string    `firestore:"fullName"`
	Email     string    `firestore:"email"`
	IsAdmin   bool      `firestore:"isAdmin"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d profileDocument) toDomain(id string) domain.Profile {
	return domain.Profile{
		ID:        id,
		FullName:  d.FullName,
		Email:     d.Email,
		IsAdmin:   d.IsAdmin,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
