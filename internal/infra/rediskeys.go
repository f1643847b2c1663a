package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных BFF в Redis
	RedisNamespace = "bff"
)

// Ключи состояния
const (
	RedisKeyLatestRadars = RedisNamespace + ":radars:latest"              // Hash: SOURCE -> JSON RadarRecord
	RedisKeyLockWarmup   = RedisNamespace + ":lock:warmup:filter-options" // SetNX при прогреве
	redisKeyFilterCache  = RedisNamespace + ":cache:filter-options:"      // + source
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRadarData: поток сырых сообщений радаров "TAG|date|time|...".
	RedisChanRadarData = "radares:data"
)

// FilterOptionsCacheKey ключ кэша опций фильтра конкретного источника
func FilterOptionsCacheKey(source string) string {
	return fmt.Sprintf("%s%s", redisKeyFilterCache, source)
}
