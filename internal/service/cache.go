// cache.go — LRU-кэш запечатанных папок с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_cache_hits_total",
		Help: "Общее количество попаданий в кэш папок.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_cache_misses_total",
		Help: "Общее количество промахов кэша папок.",
	})
)

// CacheService — per-instance кэш папок. Запечатанная папка неизменяема,
// поэтому запись инвалидируется только при удалении папки.
type CacheService struct {
	cache *expirable.LRU[string, *model.Folder]
}

// NewCacheService создаёт кэш на maxSize записей с временем жизни ttl.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{
		cache: expirable.NewLRU[string, *model.Folder](maxSize, nil, ttl),
	}
}

// Get возвращает папку по ID.
func (c *CacheService) Get(folderID string) (*model.Folder, bool) {
	val, ok := c.cache.Get(folderID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись.
func (c *CacheService) Set(folder *model.Folder) {
	c.cache.Add(folder.ID, folder)
}

// Delete удаляет запись.
func (c *CacheService) Delete(folderID string) {
	c.cache.Remove(folderID)
}

// Len возвращает количество записей.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
