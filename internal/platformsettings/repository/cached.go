package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"gym-frontdesk/backend/internal/platformsettings/domain"
)

const deviceTrustCacheKey = "device_trust"

// CachedRepository serves device trust settings from an expirable LRU in front of another Repository.
// Writes go to the inner repository and invalidate the cached entry.
type CachedRepository struct {
	inner Repository
	cache *expirable.LRU[string, domain.DeviceTrustSettings]
}

// NewCachedRepository wraps inner with a cache whose entries live for ttl.
// A non-positive ttl disables caching and returns inner unchanged.
func NewCachedRepository(inner Repository, ttl time.Duration) Repository {
	if ttl <= 0 {
		return inner
	}
	return &CachedRepository{
		inner: inner,
		cache: expirable.NewLRU[string, domain.DeviceTrustSettings](8, nil, ttl),
	}
}

// GetDeviceTrustSettings returns the cached settings or loads them from the inner repository.
// Load errors are not cached.
func (r *CachedRepository) GetDeviceTrustSettings(ctx context.Context) (*domain.DeviceTrustSettings, error) {
	if s, ok := r.cache.Get(deviceTrustCacheKey); ok {
		return cloneSettings(s), nil
	}
	s, err := r.inner.GetDeviceTrustSettings(ctx)
	if err != nil {
		return nil, err
	}
	if s != nil {
		r.cache.Add(deviceTrustCacheKey, *cloneSettings(*s))
	}
	return s, nil
}

// SetFingerprintingEnabled writes through and drops the cached entry.
func (r *CachedRepository) SetFingerprintingEnabled(ctx context.Context, enabled bool) error {
	defer r.cache.Remove(deviceTrustCacheKey)
	return r.inner.SetFingerprintingEnabled(ctx, enabled)
}

func cloneSettings(s domain.DeviceTrustSettings) *domain.DeviceTrustSettings {
	out := s
	out.FingerprintRoles = append([]string(nil), s.FingerprintRoles...)
	return &out
}
