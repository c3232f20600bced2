package config

const (
	registryBackendVar    = "REGISTRY_BACKEND"
	registrySQLitePathVar = "REGISTRY_SQLITE_PATH"
	redisAddrVar          = "REDIS_ADDR"
	redisPasswordVar      = "REDIS_PASSWORD"
	redisDBVar            = "REDIS_DB"
	redisKeyPrefixVar     = "REDIS_KEY_PREFIX"

	RegistryMemory = "memory"
	RegistrySQLite = "sqlite"
	RegistryRedis  = "redis"
)

type Registry struct{}

var _ RegistryConfig = Registry{}

func (Registry) GetRegistryBackend() string {
	return GetEnv(registryBackendVar, RegistryMemory)
}

func (Registry) GetRegistrySQLitePath() string {
	return GetEnv(registrySQLitePathVar, "./data/sessions.db")
}

func (Registry) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "localhost:6379")
}

func (Registry) GetRedisPassword() string {
	return GetEnv(redisPasswordVar, "")
}

func (Registry) GetRedisDB() int {
	db, _ := parseInt(redisDBVar, 0)
	return db
}

func (Registry) GetRedisKeyPrefix() string {
	return GetEnv(redisKeyPrefixVar, "session-auth:")
}
