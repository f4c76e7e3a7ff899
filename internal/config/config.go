// internal/config/config.go
package config

import (
	"log"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Engine   EngineConfig
	Taxonomy TaxonomyConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	UploadDir string
	DataDir   string
}

type CacheConfig struct {
	Enabled           bool
	RedisURL          string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	SummaryTTLSeconds int
}

// EngineConfig tunes the movement reconstruction engine.
type EngineConfig struct {
	// Workers caps the item-level worker pool. Zero means NumCPU.
	Workers int
	// AutoCloseResidual controls end-of-window reconciliation: when true,
	// residual warehouse stock is closed out with a synthetic outbound
	// correction; when false it is reported as an exception only.
	AutoCloseResidual bool
	// DateLayouts are the accepted cell date formats, tried in order.
	DateLayouts []string
}

// TaxonomyConfig is the injected location classification: which columns are
// warehouses (in tie-break priority order), which are sites, and which
// warehouse is the offshore marshalling base.
type TaxonomyConfig struct {
	Warehouses []string
	Sites      []string
	Offshore   string
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "cargoflow")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("APP_UPLOAD_DIR", "./data/uploads")
		viper.SetDefault("APP_DATA_DIR", "./data/output")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_SUMMARY_TTL_SECONDS", 60)
		viper.SetDefault("ENGINE_WORKERS", runtime.NumCPU())
		viper.SetDefault("ENGINE_AUTO_CLOSE_RESIDUAL", true)
		viper.SetDefault("ENGINE_DATE_LAYOUTS", []string{
			"2006-01-02",
			"2006-01-02 15:04:05",
			"2006/01/02",
			"02-Jan-2006",
			"1/2/2006",
		})
		viper.SetDefault("TAXONOMY_WAREHOUSES", []string{
			"DSV Al Markaz",
			"DSV Indoor",
			"DSV Outdoor",
			"AAA Storage",
			"Hauler Indoor",
			"DSV MZP",
			"MOSB",
		})
		viper.SetDefault("TAXONOMY_SITES", []string{"AGI", "DAS", "MIR", "SHU"})
		viper.SetDefault("TAXONOMY_OFFSHORE", "MOSB")
		viper.SetDefault("STORAGE_ENABLED", false)
		viper.SetDefault("STORAGE_ENDPOINT", "")
		viper.SetDefault("STORAGE_ACCESS_KEY", "")
		viper.SetDefault("STORAGE_SECRET_KEY", "")
		viper.SetDefault("STORAGE_BUCKET", "cargoflow-results")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_USE_SSL", true)

		// Read from environment variables
		viper.AutomaticEnv()

		// Ensure upload and data directories exist
		ensureDir(viper.GetString("APP_UPLOAD_DIR"))
		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			App: AppConfig{
				UploadDir: viper.GetString("APP_UPLOAD_DIR"),
				DataDir:   viper.GetString("APP_DATA_DIR"),
			},
			Cache: CacheConfig{
				Enabled:           viper.GetBool("CACHE_ENABLED"),
				RedisURL:          viper.GetString("REDIS_URL"),
				RedisHost:         viper.GetString("REDIS_HOST"),
				RedisPort:         viper.GetString("REDIS_PORT"),
				RedisPassword:     viper.GetString("REDIS_PASSWORD"),
				RedisDB:           viper.GetInt("REDIS_DB"),
				SummaryTTLSeconds: viper.GetInt("CACHE_SUMMARY_TTL_SECONDS"),
			},
			Engine: EngineConfig{
				Workers:           viper.GetInt("ENGINE_WORKERS"),
				AutoCloseResidual: viper.GetBool("ENGINE_AUTO_CLOSE_RESIDUAL"),
				DateLayouts:       viper.GetStringSlice("ENGINE_DATE_LAYOUTS"),
			},
			Taxonomy: TaxonomyConfig{
				Warehouses: viper.GetStringSlice("TAXONOMY_WAREHOUSES"),
				Sites:      viper.GetStringSlice("TAXONOMY_SITES"),
				Offshore:   viper.GetString("TAXONOMY_OFFSHORE"),
			},
			Storage: StorageConfig{
				Enabled:   viper.GetBool("STORAGE_ENABLED"),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    strings.TrimSpace(viper.GetString("STORAGE_REGION")),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
