package common

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	OCR      OCRConfig      `yaml:"ocr"`
	Parser   ParserConfig   `yaml:"parser"`
	Resolver ResolverConfig `yaml:"resolver"`
	Cache    CacheConfig    `yaml:"cache"`
	Upload   UploadConfig   `yaml:"upload"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	APIKey          string        `yaml:"api_key"`
	ImportRoot      string        `yaml:"import_root"`
	Mode            string        `yaml:"mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"`
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// OCRConfig holds rasterizer and recognizer configuration
type OCRConfig struct {
	Engine         string        `yaml:"engine"`
	PdftoppmBin    string        `yaml:"pdftoppm_bin"`
	TesseractBin   string        `yaml:"tesseract_bin"`
	Lang           string        `yaml:"lang"`
	OEM            int           `yaml:"oem"`
	PSM            int           `yaml:"psm"`
	DPI            int           `yaml:"dpi"`
	TessdataDir    string        `yaml:"tessdata_dir"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

// ParserConfig controls how the exam block is located in OCR text
type ParserConfig struct {
	Anchor        string `yaml:"anchor"`
	Boundary      string `yaml:"boundary"`
	Greedy        bool   `yaml:"greedy"`
	MinLineLength int    `yaml:"min_line_length"`
}

// ResolverConfig controls catalog lookups
type ResolverConfig struct {
	Separator      string        `yaml:"separator"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
}

// CacheConfig selects the lookup cache backend: none, memory or redis
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// UploadConfig holds artifact storage settings
type UploadConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type ProtocolConfig struct {
	Prefix string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when neither a file nor the environment says otherwise.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			Mode:            "debug",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:exams.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		OCR: OCRConfig{
			Engine:         "tesseract",
			PdftoppmBin:    "pdftoppm",
			TesseractBin:   "tesseract",
			Lang:           "por",
			OEM:            1,
			PSM:            3,
			DPI:            300,
			ProcessTimeout: 2 * time.Minute,
		},
		Parser: ParserConfig{
			Anchor:        `Exames\s+Laboratoriais\s*`,
			Boundary:      `\n\n[A-Z]{2,}`,
			MinLineLength: 6,
		},
		Resolver: ResolverConfig{
			Separator: " - ",
		},
		Cache: CacheConfig{
			Backend: "none",
			TTL:     10 * time.Minute,
		},
		Upload: UploadConfig{
			Dir:      "uploads",
			MaxBytes: 20 << 20,
		},
		Protocol: ProtocolConfig{
			Prefix: "UNIAGENDE",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the optional YAML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "cannot read config file", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "invalid config file", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.APIKey = getEnv("API_KEY", c.Server.APIKey)
	c.Server.ImportRoot = getEnv("IMPORT_ROOT", c.Server.ImportRoot)
	c.Server.Mode = getEnv("MODE", c.Server.Mode)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.PdftoppmBin = getEnv("PDFTOPPM_BIN", c.OCR.PdftoppmBin)
	c.OCR.TesseractBin = getEnv("TESSERACT_BIN", c.OCR.TesseractBin)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.OEM = getEnvAsInt("OCR_OEM", c.OCR.OEM)
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.ProcessTimeout = getEnvAsDuration("OCR_PROCESS_TIMEOUT", c.OCR.ProcessTimeout)

	c.Parser.Anchor = getEnv("PARSER_ANCHOR", c.Parser.Anchor)
	c.Parser.Boundary = getEnv("PARSER_BOUNDARY", c.Parser.Boundary)
	c.Parser.Greedy = getEnvAsBool("PARSER_GREEDY", c.Parser.Greedy)
	c.Parser.MinLineLength = getEnvAsInt("PARSER_MIN_LINE_LENGTH", c.Parser.MinLineLength)

	c.Resolver.Separator = getEnv("RESOLVER_SEPARATOR", c.Resolver.Separator)
	c.Resolver.MaxConcurrency = getEnvAsInt("RESOLVER_MAX_CONCURRENCY", c.Resolver.MaxConcurrency)
	c.Resolver.LookupTimeout = getEnvAsDuration("RESOLVER_LOOKUP_TIMEOUT", c.Resolver.LookupTimeout)

	c.Cache.Backend = getEnv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvAsInt("REDIS_DB", c.Cache.RedisDB)
	c.Cache.TTL = getEnvAsDuration("CACHE_TTL", c.Cache.TTL)

	c.Upload.Dir = getEnv("UPLOAD_DIR", c.Upload.Dir)
	c.Upload.MaxBytes = getEnvAsInt64("UPLOAD_MAX_BYTES", c.Upload.MaxBytes)

	c.Protocol.Prefix = getEnv("PROTOCOL_PREFIX", c.Protocol.Prefix)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported DB_DRIVER %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR or GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_DPI must be positive", ErrInvalidInput)
	}
	if c.OCR.Engine != "tesseract" && c.OCR.Engine != "gosseract" {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported OCR_ENGINE %q", c.OCR.Engine), ErrInvalidInput)
	}
	if _, err := regexp.Compile(c.Parser.Anchor); err != nil {
		return NewAppError("CONFIG_ERROR", "PARSER_ANCHOR is not a valid pattern", err)
	}
	if _, err := regexp.Compile(c.Parser.Boundary); err != nil {
		return NewAppError("CONFIG_ERROR", "PARSER_BOUNDARY is not a valid pattern", err)
	}
	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_ADDR is required for the redis cache", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported CACHE_BACKEND %q", c.Cache.Backend), ErrInvalidInput)
	}
	if c.Upload.Dir == "" {
		return NewAppError("CONFIG_ERROR", "UPLOAD_DIR is required", ErrInvalidInput)
	}
	if c.Protocol.Prefix == "" {
		return NewAppError("CONFIG_ERROR", "PROTOCOL_PREFIX is required", ErrInvalidInput)
	}
	return nil
}
