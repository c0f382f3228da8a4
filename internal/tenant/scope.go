package tenant

import "gorm.io/gorm"

// ForMarket returns a GORM scope that filters by market_id.
func ForMarket(marketID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("market_id = ?", marketID)
	}
}
