package kyc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrAlreadyVerified     = errors.New("vendor is already verified")
	ErrReviewPending       = errors.New("a verification is already awaiting review")
	ErrVerificationMissing = errors.New("verification not found")
	ErrAlreadyDecided      = errors.New("verification was already reviewed")
	ErrStorageUnavailable  = errors.New("document storage is not configured")
	ErrInvalidDocument     = errors.New("document must be a JPEG, PNG, WebP or PDF under 5 MB")
)

const (
	maxDocumentBytes = 5 << 20
	documentURLTTL   = 15 * time.Minute
)

var allowedDocumentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// DocumentStore keeps uploaded identity documents.
type DocumentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// VendorMarker records a user as a verified vendor.
type VendorMarker interface {
	MarkVendorVerified(ctx context.Context, marketID string, userID uuid.UUID, at time.Time) error
}

type Submission struct {
	BusinessName string
	IDType       string
	IDNumber     string
	FileName     string
	Document     []byte
}

type KYCService struct {
	repo    Repository
	docs    DocumentStore
	vendors VendorMarker
	now     func() time.Time
}

// NewKYCService builds the service. docs may be nil when object storage is
// not configured; submissions then fail with ErrStorageUnavailable.
func NewKYCService(repo Repository, docs DocumentStore, vendors VendorMarker) *KYCService {
	return &KYCService{repo: repo, docs: docs, vendors: vendors, now: time.Now}
}

func (s *KYCService) Submit(ctx context.Context, marketID string, userID uuid.UUID, in Submission) (*Verification, error) {
	if s.docs == nil {
		return nil, ErrStorageUnavailable
	}
	contentType := storage.ContentType(in.FileName)
	if len(in.Document) == 0 || len(in.Document) > maxDocumentBytes || !allowedDocumentTypes[contentType] {
		return nil, ErrInvalidDocument
	}

	latest, err := s.repo.Latest(ctx, marketID, userID)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("load verification: %w", err)
	}
	if latest != nil {
		switch latest.Status {
		case StatusApproved:
			return nil, ErrAlreadyVerified
		case StatusPending:
			return nil, ErrReviewPending
		}
	}

	key := storage.ObjectKey(fmt.Sprintf("kyc/%s/%s", marketID, userID), in.FileName)
	if err := s.docs.Put(ctx, key, in.Document, contentType); err != nil {
		return nil, err
	}

	v := &Verification{
		ID:           uuid.New(),
		MarketID:     marketID,
		UserID:       userID,
		BusinessName: strings.TrimSpace(in.BusinessName),
		IDType:       in.IDType,
		IDNumber:     strings.TrimSpace(in.IDNumber),
		DocumentKey:  key,
		DocumentType: contentType,
		Status:       StatusPending,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}
	slog.Info("vendor verification submitted", "market_id", marketID, "user_id", userID.String(), "action", "kyc.submit")
	return v, nil
}

// Status returns the user's most recent verification.
func (s *KYCService) Status(ctx context.Context, marketID string, userID uuid.UUID) (*Verification, error) {
	v, err := s.repo.Latest(ctx, marketID, userID)
	if errors.Is(err, errNotFound) {
		return nil, ErrVerificationMissing
	}
	return v, err
}

func (s *KYCService) List(ctx context.Context, marketID, status string, limit, offset int) ([]Verification, int64, error) {
	return s.repo.ListByStatus(ctx, marketID, status, limit, offset)
}

// Review approves or rejects a pending verification. Approval makes the
// user a verified vendor.
func (s *KYCService) Review(ctx context.Context, marketID string, id uuid.UUID, reviewer uuid.UUID, approve bool, note string) (*Verification, error) {
	v, err := s.repo.Get(ctx, marketID, id)
	if errors.Is(err, errNotFound) {
		return nil, ErrVerificationMissing
	}
	if err != nil {
		return nil, err
	}

	status := StatusRejected
	if approve {
		status = StatusApproved
	}
	now := s.now().UTC()
	ok, err := s.repo.Decide(ctx, marketID, id, status, note, reviewer, now)
	if err != nil {
		return nil, fmt.Errorf("decide verification: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyDecided
	}

	if approve {
		if err := s.vendors.MarkVendorVerified(ctx, marketID, v.UserID, now); err != nil {
			return nil, fmt.Errorf("mark vendor verified: %w", err)
		}
	}
	slog.Info("vendor verification reviewed",
		"market_id", marketID,
		"user_id", v.UserID.String(),
		"status", status,
		"action", "kyc.review",
	)

	v.Status = status
	v.ReviewNote = note
	v.ReviewedBy = &reviewer
	v.ReviewedAt = &now
	return v, nil
}

// DocumentURL returns a short-lived download link for the reviewer.
func (s *KYCService) DocumentURL(ctx context.Context, marketID string, id uuid.UUID) (string, error) {
	if s.docs == nil {
		return "", ErrStorageUnavailable
	}
	v, err := s.repo.Get(ctx, marketID, id)
	if errors.Is(err, errNotFound) {
		return "", ErrVerificationMissing
	}
	if err != nil {
		return "", err
	}
	return s.docs.URL(ctx, v.DocumentKey, documentURLTTL)
}
