package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Server struct {
	ListenAddress  string        `yaml:"listen_address"`
	PublicBaseURL  string        `yaml:"public_base_url"` // used to build local media URLs
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type Storage struct {
	Driver          string        `yaml:"driver"` // sqlite | postgres | mongo
	SQLitePath      string        `yaml:"sqlite_path"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
	MongoCollection string        `yaml:"mongo_collection"`
}

type Blob struct {
	Driver      string `yaml:"driver"` // local | supabase
	LocalDir    string `yaml:"local_dir"`
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	Bucket      string `yaml:"bucket"`
}

type Speech struct {
	Driver          string `yaml:"driver"` // google | whisperx
	CredentialsFile string `yaml:"credentials_file"`
	DefaultLanguage string `yaml:"default_language"`
	Encoding        string `yaml:"encoding"`
	WhisperxBinary  string `yaml:"whisperx_binary"`
	WhisperxModel   string `yaml:"whisperx_model"`
}

type Analyzer struct {
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	Model           string `yaml:"model"`
	CredentialsFile string `yaml:"credentials_file"`
}

type Config struct {
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
	Blob     Blob     `yaml:"blob"`
	Speech   Speech   `yaml:"speech"`
	Analyzer Analyzer `yaml:"analyzer"`
}

// Load reads the YAML file at path, overlays environment variables (after loading
// a .env file when present) and fills in defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
		}
	}

	c.applyEnv(os.Getenv)
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Server.ListenAddress = ":" + port
	}
	set(&c.Server.PublicBaseURL, "PUBLIC_BASE_URL")
	set(&c.Storage.Driver, "STORAGE_DRIVER")
	set(&c.Storage.SQLitePath, "SQLITE_PATH")
	set(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	set(&c.Storage.MongoURI, "MONGO_URI")
	set(&c.Storage.MongoDatabase, "MONGO_DATABASE")
	set(&c.Blob.Driver, "BLOB_DRIVER")
	set(&c.Blob.SupabaseURL, "SUPABASE_URL")
	set(&c.Blob.SupabaseKey, "SUPABASE_KEY")
	set(&c.Blob.Bucket, "SUPABASE_BUCKET")
	set(&c.Speech.Driver, "SPEECH_DRIVER")
	set(&c.Speech.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	set(&c.Analyzer.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	set(&c.Analyzer.ProjectID, "GOOGLE_CLOUD_PROJECT")
	set(&c.Analyzer.Location, "GOOGLE_CLOUD_LOCATION")
	set(&c.Analyzer.Model, "GEMINI_MODEL")
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8121"
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://localhost" + c.Server.ListenAddress
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 25 << 20
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./stories.db"
	}
	if c.Storage.MongoDatabase == "" {
		c.Storage.MongoDatabase = "storyweaver"
	}
	if c.Storage.MongoCollection == "" {
		c.Storage.MongoCollection = "stories"
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = "local"
	}
	if c.Blob.LocalDir == "" {
		c.Blob.LocalDir = "./media"
	}
	if c.Blob.Bucket == "" {
		c.Blob.Bucket = "audios"
	}
	if c.Speech.Driver == "" {
		c.Speech.Driver = "google"
	}
	if c.Speech.DefaultLanguage == "" {
		c.Speech.DefaultLanguage = "en-IN"
	}
	if c.Speech.Encoding == "" {
		c.Speech.Encoding = "WEBM_OPUS"
	}
	if c.Analyzer.Location == "" {
		c.Analyzer.Location = "us-central1"
	}
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = "gemini-2.5-flash"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage: postgres_dsn is required for the postgres driver")
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			return errors.New("storage: mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("storage: unsupported driver %q", c.Storage.Driver)
	}

	switch c.Blob.Driver {
	case "local":
	case "supabase":
		if c.Blob.SupabaseURL == "" || c.Blob.SupabaseKey == "" {
			return errors.New("blob: supabase_url and supabase_key are required for the supabase driver")
		}
	default:
		return fmt.Errorf("blob: unsupported driver %q", c.Blob.Driver)
	}

	switch c.Speech.Driver {
	case "google", "whisperx":
	default:
		return fmt.Errorf("speech: unsupported driver %q", c.Speech.Driver)
	}

	return nil
}
