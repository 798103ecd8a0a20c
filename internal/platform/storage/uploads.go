package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
)

const (
	defaultUploadExpiry = 15 * time.Minute
	maxUploadExpiry     = time.Hour
	// MaxProductImageBytes bounds uploads through x-goog-content-length-range.
	MaxProductImageBytes = 5 << 20
)

var (
	// ErrContentTypeNotAllowed is returned for anything other than jpeg, png or webp.
	ErrContentTypeNotAllowed = errors.New("storage: content type not allowed")
	errNoSigner              = errors.New("storage: signer is required")
	errNoBucket              = errors.New("storage: bucket name is required")
	errNoProduct             = errors.New("storage: product id is required")
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// UploadTicket is a V4 signed PUT URL plus the headers the client must send with it.
type UploadTicket struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"objectKey"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// ProductImages issues signed upload URLs for product photos in one bucket.
type ProductImages struct {
	bucket  string
	signer  Signer
	expiry  time.Duration
	now     func() time.Time
	entropy io.Reader
}

// ProductImagesOption customises ProductImages.
type ProductImagesOption func(*ProductImages)

// WithUploadExpiry sets how long signed URLs stay valid, capped at one hour.
func WithUploadExpiry(d time.Duration) ProductImagesOption {
	return func(p *ProductImages) {
		if d > 0 {
			p.expiry = min(d, maxUploadExpiry)
		}
	}
}

// WithClock injects a time source.
func WithClock(now func() time.Time) ProductImagesOption {
	return func(p *ProductImages) {
		if now != nil {
			p.now = now
		}
	}
}

// WithEntropy overrides the randomness used for object names.
func WithEntropy(r io.Reader) ProductImagesOption {
	return func(p *ProductImages) {
		if r != nil {
			p.entropy = r
		}
	}
}

// NewProductImages binds signer to bucket.
func NewProductImages(bucket string, signer Signer, opts ...ProductImagesOption) (*ProductImages, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errNoBucket
	}
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	p := &ProductImages{
		bucket:  bucket,
		signer:  signer,
		expiry:  defaultUploadExpiry,
		now:     time.Now,
		entropy: ulid.DefaultEntropy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// UploadURL signs a PUT for a new object under products/{productID}/.
func (p *ProductImages) UploadURL(ctx context.Context, productID, contentType string) (UploadTicket, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return UploadTicket{}, errNoProduct
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return UploadTicket{}, fmt.Errorf("%w: %q", ErrContentTypeNotAllowed, contentType)
	}

	now := p.now()
	id, err := ulid.New(ulid.Timestamp(now), p.entropy)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("storage: object id: %w", err)
	}
	object := path.Join("products", url.PathEscape(productID), strings.ToLower(id.String())+"."+ext)
	expires := now.Add(p.expiry)
	sizeRange := fmt.Sprintf("0,%d", MaxProductImageBytes)

	signed, err := gcs.SignedURL(p.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: p.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expires,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		SignBytes: func(payload []byte) ([]byte, error) {
			return p.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return UploadTicket{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return UploadTicket{
		UploadURL: signed,
		Method:    "PUT",
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
		ObjectKey: object,
		PublicURL: PublicURL(p.bucket, object),
		ExpiresAt: expires,
	}, nil
}

// PublicURL is the anonymous read URL of an object in a public bucket.
func PublicURL(bucket, object string) string {
	return (&url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + bucket + "/" + object}).String()
}
