package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleBuyer  = "buyer"
	RoleVendor = "vendor"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// User is a marketplace account. Email is unique per market.
type User struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MarketID         string         `gorm:"size:50;not null;uniqueIndex:idx_users_market_email" json:"-"`
	Email            string         `gorm:"not null;size:255;uniqueIndex:idx_users_market_email" json:"email"`
	Password         string         `gorm:"not null" json:"-"`
	FullName         string         `gorm:"size:255" json:"full_name"`
	Phone            string         `gorm:"size:50" json:"phone,omitempty"`
	Role             string         `gorm:"size:20;not null;default:'buyer'" json:"role"`
	VendorVerifiedAt *time.Time     `json:"vendor_verified_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) IsVerifiedVendor() bool {
	return u.Role == RoleVendor && u.VendorVerifiedAt != nil
}
