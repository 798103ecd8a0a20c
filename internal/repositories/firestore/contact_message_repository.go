package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const contactMessageCollection = "contact_messages"

// ContactMessageRepository appends contact form submissions.
type ContactMessageRepository struct {
	messages *pfirestore.Collection[contactMessageDocument]
}

var _ repositories.ContactMessageRepository = (*ContactMessageRepository)(nil)

func NewContactMessageRepository(provider *pfirestore.Provider) (*ContactMessageRepository, error) {
	if provider == nil {
		return nil, errors.New("contact message repository requires firestore provider")
	}
	return &ContactMessageRepository{messages: pfirestore.NewCollection[contactMessageDocument](provider, contactMessageCollection)}, nil
}

func (r *ContactMessageRepository) Insert(ctx context.Context, msg domain.ContactMessage) error {
	ref, err := r.messages.Ref(ctx, msg.ID)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, contactMessageDocument{
		Name:      msg.Name,
		Email:     msg.Email,
		Phone:     msg.Phone,
		Subject:   msg.Subject,
		Message:   msg.Message,
		CreatedAt: msg.CreatedAt.UTC(),
	})
	return pfirestore.WrapError("contact_messages.insert", err)
}

type contactMessageDocument struct {
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone,omitempty"`
	Subject   string    `firestore:"subject,omitempty"`
	Message   string    `firestore:"message"`
	CreatedAt time.Time `firestore:"createdAt"`
}
