package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// MarketConfig describes one storefront served by this backend.
type MarketConfig struct {
	MarketID     string          `json:"market_id"`
	Name         string          `json:"name"`
	Currency     string          `json:"currency"`
	SupportEmail string          `json:"support_email"`
	Features     map[string]bool `json:"features"`
}

type MarketsFile struct {
	Markets []MarketConfig `json:"markets"`
}

// Feature flags understood by the core.
const (
	FeatureRequireKYC  = "require_kyc"
	FeatureSupportChat = "support_chat"
)

type Registry struct {
	mu              sync.RWMutex
	markets         map[string]*MarketConfig
	defaultCurrency string
}

func NewRegistry(defaultCurrency string) *Registry {
	return &Registry{
		markets:         make(map[string]*MarketConfig),
		defaultCurrency: strings.ToUpper(defaultCurrency),
	}
}

func LoadFromFile(path, defaultCurrency string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markets config: %w", err)
	}

	var file MarketsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse markets config: %w", err)
	}

	registry := NewRegistry(defaultCurrency)
	for i := range file.Markets {
		if file.Markets[i].MarketID == "" {
			return nil, fmt.Errorf("markets config entry %d has no market_id", i)
		}
		registry.Register(&file.Markets[i])
	}
	return registry, nil
}

func (r *Registry) Register(cfg *MarketConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[cfg.MarketID] = cfg
}

func (r *Registry) Get(marketID string) *MarketConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.markets[marketID]
}

func (r *Registry) Exists(marketID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.markets[marketID]
	return ok
}

func (r *Registry) HasFeature(marketID, feature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.markets[marketID]
	if !ok {
		return false
	}
	return cfg.Features[feature]
}

// Currency returns the market's ISO currency, or the registry default.
func (r *Registry) Currency(marketID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.markets[marketID]; ok && cfg.Currency != "" {
		return strings.ToUpper(cfg.Currency)
	}
	return r.defaultCurrency
}

func (r *Registry) SupportEmail(marketID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.markets[marketID]; ok {
		return cfg.SupportEmail
	}
	return ""
}

// IDs returns the registered market ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.markets))
	for id := range r.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) All() []*MarketConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*MarketConfig, 0, len(r.markets))
	for _, cfg := range r.markets {
		result = append(result, cfg)
	}
	return result
}
