package redis

import "transit/internal/service"

// Ensure concrete types implement interfaces.
var _ service.CapacityCache = (*CacheStore)(nil)
