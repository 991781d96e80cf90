package reference

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"batchgen/logging"
)

// Default lifetime of a cached asset id. Remote media ids are not kept
// forever by the service, so entries expire.
const (
	DefaultAssetTTL      = 30 * time.Minute
	assetCleanupInterval = 1 * time.Hour
)

type cachedAsset struct {
	assetID string
	caption string
}

// AssetCache is an UploadCapability that remembers asset ids by image
// content, so the same file attached to several slots (or re-attached
// between runs of one process) is uploaded once. Concurrent uploads of the
// same content share a single call.
type AssetCache struct {
	next   UploadCapability
	cache  *cache.Cache
	group  singleflight.Group
	logger *logging.Logger
}

var _ UploadCapability = (*AssetCache)(nil)

// NewAssetCache wraps next. A ttl of zero uses DefaultAssetTTL.
func NewAssetCache(next UploadCapability, ttl time.Duration, logger *logging.Logger) *AssetCache {
	if ttl <= 0 {
		ttl = DefaultAssetTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AssetCache{
		next:   next,
		cache:  cache.New(ttl, assetCleanupInterval),
		logger: logger.Named("asset_cache"),
	}
}

// Upload returns the cached asset for the file's content and category, or
// uploads it through the wrapped capability.
func (a *AssetCache) Upload(ctx context.Context, localPath string, category Category) (string, string, error) {
	key, err := contentKey(localPath, category)
	if err != nil {
		return "", "", err
	}

	if v, ok := a.cache.Get(key); ok {
		hit := v.(cachedAsset)
		a.logger.Debug("asset cache hit", zap.String("path", localPath))
		return hit.assetID, hit.caption, nil
	}

	val, err, shared := a.group.Do(key, func() (interface{}, error) {
		if v, ok := a.cache.Get(key); ok {
			return v.(cachedAsset), nil
		}
		assetID, caption, err := a.next.Upload(ctx, localPath, category)
		if err != nil {
			return nil, err
		}
		asset := cachedAsset{assetID: assetID, caption: caption}
		if assetID != "" {
			a.cache.SetDefault(key, asset)
		}
		return asset, nil
	})
	if err != nil {
		return "", "", err
	}
	if shared {
		a.logger.Debug("asset upload shared", zap.String("path", localPath))
	}

	asset, ok := val.(cachedAsset)
	if !ok {
		return "", "", fmt.Errorf("reference: unexpected cache value %T", val)
	}
	return asset.assetID, asset.caption, nil
}

// Forget drops every cached asset.
func (a *AssetCache) Forget() {
	a.cache.Flush()
}

// Len returns the number of cached assets, including expired ones not yet
// cleaned up.
func (a *AssetCache) Len() int {
	return a.cache.ItemCount()
}

// contentKey hashes the file with BLAKE2b-256 and prefixes the category,
// since the same picture uploaded as a subject and as a style yields
// different remote media.
func contentKey(localPath string, category Category) (string, error) {
	if localPath == "" {
		return "", ErrNoLocalImage
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("reference: open %s: %w", localPath, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("reference: hash init: %w", err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reference: hash %s: %w", localPath, err)
	}
	return category.String() + ":" + hex.EncodeToString(h.Sum(nil)), nil
}
