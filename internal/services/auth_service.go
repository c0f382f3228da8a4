package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrUserNotFound       = errors.New("user not found")
)

type AuthService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	return &AuthService{db: db, cfg: cfg}
}

func (s *AuthService) Register(ctx context.Context, marketID string, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := models.RoleBuyer
	if req.AccountType == models.RoleVendor {
		role = models.RoleVendor
	}

	user := models.User{
		ID:       uuid.New(),
		MarketID: marketID,
		Email:    email,
		Password: string(hash),
		FullName: strings.TrimSpace(req.FullName),
		Phone:    strings.TrimSpace(req.Phone),
		Role:     role,
	}
	if s.isAdminEmail(email) {
		user.Role = models.RoleAdmin
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.generateTokenPair(ctx, marketID, &user)
}

func (s *AuthService) isAdminEmail(email string) bool {
	for _, admin := range strings.Split(s.cfg.AdminEmails, ",") {
		admin = strings.TrimSpace(admin)
		if admin != "" && strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

func (s *AuthService) Login(ctx context.Context, marketID string, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	var user models.User
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(ctx, marketID, &user)
}

// Refresh rotates a refresh token. The presented token is revoked whether
// or not a new pair is issued.
func (s *AuthService) Refresh(ctx context.Context, marketID string, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	db := s.db.WithContext(ctx)
	tokenHash := hashToken(req.RefreshToken)

	var stored models.RefreshToken
	if err := db.Scopes(tenant.ForMarket(marketID)).Where("token_hash = ? AND revoked = false", tokenHash).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	db.Model(&stored).Update("revoked", true)
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := db.Scopes(tenant.ForMarket(marketID)).First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	return s.generateTokenPair(ctx, marketID, &user)
}

func (s *AuthService) Logout(ctx context.Context, marketID string, req *dto.LogoutRequest) error {
	tokenHash := hashToken(req.RefreshToken)
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (s *AuthService) GetUser(ctx context.Context, marketID string, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// IsVerifiedVendor reports whether the user passed KYC as a vendor.
func (s *AuthService) IsVerifiedVendor(ctx context.Context, marketID string, userID uuid.UUID) (bool, error) {
	user, err := s.GetUser(ctx, marketID, userID)
	if err != nil {
		return false, err
	}
	return user.IsVerifiedVendor(), nil
}

// MarkVendorVerified promotes the user to a verified vendor.
func (s *AuthService) MarkVendorVerified(ctx context.Context, marketID string, userID uuid.UUID, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("id = ? AND role <> ?", userID, models.RoleAdmin).
		Updates(map[string]interface{}{
			"role":               models.RoleVendor,
			"vendor_verified_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *AuthService) DeleteAccount(ctx context.Context, marketID string, userID uuid.UUID, password string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).First(&user, "id = ?", userID).Error; err != nil {
		return ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND market_id = ?", userID, marketID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Subscription{}).
			Where("user_id = ? AND market_id = ? AND status = ?", userID, marketID, models.SubscriptionActive).
			Update("status", models.SubscriptionExpired).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND market_id = ?", userID, marketID).Delete(&models.ProductSubmission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("reporter_id = ? AND market_id = ?", userID, marketID).Delete(&models.Report{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

func (s *AuthService) generateTokenPair(ctx context.Context, marketID string, user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(marketID, user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, marketID, user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: dto.UserResponse{
			ID:               user.ID,
			Email:            user.Email,
			FullName:         user.FullName,
			Role:             user.Role,
			IsVerifiedVendor: user.IsVerifiedVendor(),
		},
	}, nil
}

func (s *AuthService) generateAccessToken(marketID string, user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":       user.ID.String(),
		"email":     user.Email,
		"market_id": marketID,
		"role":      user.Role,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(ctx context.Context, marketID string, user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)
	record := models.RefreshToken{
		ID:        uuid.New(),
		MarketID:  marketID,
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
