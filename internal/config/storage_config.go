package config

type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageFile   StorageBackend = "file"
	StorageRedis  StorageBackend = "redis"
)

type StorageConfig interface {
	GetStorageBackend() StorageBackend
	GetStoragePath() string
	GetStoragePassphrase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct {
	file *File
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() StorageBackend {
	switch b := StorageBackend(GetEnv("STORAGE_BACKEND", firstNonEmpty(s.f().Storage.Backend, string(StorageFile)))); b {
	case StorageMemory, StorageFile, StorageRedis:
		return b
	default:
		return StorageFile
	}
}

func (s Storage) GetStoragePath() string {
	return GetEnv("STORAGE_PATH", firstNonEmpty(s.f().Storage.Path, "./data"))
}

// GetStoragePassphrase enables sealing of the persisted session when non-empty.
func (s Storage) GetStoragePassphrase() string {
	return GetEnv("STORAGE_PASSPHRASE", s.f().Storage.Passphrase)
}

func (s Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", firstNonEmpty(s.f().Storage.RedisAddr, "localhost:6379"))
}

func (s Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", s.f().Storage.RedisPassword)
}

func (s Storage) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", s.f().Storage.RedisDB)
}

func (s Storage) f() *File {
	if s.file == nil {
		return &File{}
	}
	return s.file
}
