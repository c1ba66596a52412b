package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Log
		Credentials
		GoogleDrive
		OneDrive
		WebDAV
		LibrarySync
		Replication
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Log struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
	Credentials struct {
		Manager        string // keyring, database or none
		KeyringService string
		EncryptionKey  string // base64 machine key for the database manager
		KeyFile        string
	}
	GoogleDrive struct {
		ClientID     string
		ClientSecret string
		APIBaseURL   string
		UploadURL    string
	}
	OneDrive struct {
		ClientID     string
		ClientSecret string
		APIBaseURL   string
	}
	WebDAV struct {
		Timeout time.Duration
	}
	LibrarySync struct {
		Enabled  bool
		Schedule string // Cron format: "*/30 * * * *" = every 30 minutes
	}
	Replication struct {
		AskForStorageUnlock   bool
		CacheStorageData      bool
		SaveBehavior          string
		StatisticsMergeMode   string
		ReadingGoalsMergeMode string
		// RemoteRoot is the directory library files live under on WebDAV
		// servers and cloud drives.
		RemoteRoot string
	}
)

var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads .env files from the working directory and, when a config
// file is given, from its directory. Missing files are ignored.
func LoadEnvFiles(configPath string) {
	for _, envFile := range envFiles {
		_ = godotenv.Load(envFile)
	}
	if configPath == "" {
		return
	}
	dir := filepath.Dir(configPath)
	for _, envFile := range envFiles {
		_ = godotenv.Load(filepath.Join(dir, envFile))
	}
}

func NewConfig() *Config {
	cfg, _ := Load("")
	return cfg
}

// Load reads configuration from the environment and, if path is set, from a
// config file. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	var err error
	if path != "" {
		v.SetConfigFile(path)
		if readErr := v.ReadInConfig(); readErr != nil {
			err = fmt.Errorf("error reading config file: %w", readErr)
		}
	}

	return fromViper(v), err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8188)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "stdout")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)

	v.SetDefault("credential_manager", CredentialManagerKeyring)
	v.SetDefault("keyring_service", DefaultKeyringService)
	v.SetDefault("token_encryption_key", "")
	v.SetDefault("token_encryption_key_file", "")

	v.SetDefault("gdrive_client_id", "")
	v.SetDefault("gdrive_client_secret", "")
	v.SetDefault("gdrive_api_base_url", "https://www.googleapis.com/drive/v3")
	v.SetDefault("gdrive_upload_url", "https://www.googleapis.com/upload/drive/v3")
	v.SetDefault("onedrive_client_id", "")
	v.SetDefault("onedrive_client_secret", "")
	v.SetDefault("onedrive_api_base_url", "https://graph.microsoft.com/v1.0")

	v.SetDefault("webdav_timeout", "60s")

	v.SetDefault("library_sync_enabled", false)
	v.SetDefault("library_sync_schedule", "*/30 * * * *") // Every 30 minutes

	v.SetDefault("ask_for_storage_unlock", true)
	v.SetDefault("cache_storage_data", false)
	v.SetDefault("save_behavior", "newOnly")
	v.SetDefault("remote_root", "/LibrarySync")
	v.SetDefault("statistics_merge_mode", "merge")
	v.SetDefault("reading_goals_merge_mode", "merge")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Log: Log{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Credentials: Credentials{
			Manager:        v.GetString("CREDENTIAL_MANAGER"),
			KeyringService: v.GetString("KEYRING_SERVICE"),
			EncryptionKey:  v.GetString("TOKEN_ENCRYPTION_KEY"),
			KeyFile:        v.GetString("TOKEN_ENCRYPTION_KEY_FILE"),
		},
		GoogleDrive: GoogleDrive{
			ClientID:     v.GetString("GDRIVE_CLIENT_ID"),
			ClientSecret: v.GetString("GDRIVE_CLIENT_SECRET"),
			APIBaseURL:   v.GetString("GDRIVE_API_BASE_URL"),
			UploadURL:    v.GetString("GDRIVE_UPLOAD_URL"),
		},
		OneDrive: OneDrive{
			ClientID:     v.GetString("ONEDRIVE_CLIENT_ID"),
			ClientSecret: v.GetString("ONEDRIVE_CLIENT_SECRET"),
			APIBaseURL:   v.GetString("ONEDRIVE_API_BASE_URL"),
		},
		WebDAV: WebDAV{
			Timeout: v.GetDuration("WEBDAV_TIMEOUT"),
		},
		LibrarySync: LibrarySync{
			Enabled:  v.GetBool("LIBRARY_SYNC_ENABLED"),
			Schedule: v.GetString("LIBRARY_SYNC_SCHEDULE"),
		},
		Replication: Replication{
			AskForStorageUnlock:   v.GetBool("ASK_FOR_STORAGE_UNLOCK"),
			CacheStorageData:      v.GetBool("CACHE_STORAGE_DATA"),
			SaveBehavior:          v.GetString("SAVE_BEHAVIOR"),
			StatisticsMergeMode:   v.GetString("STATISTICS_MERGE_MODE"),
			ReadingGoalsMergeMode: v.GetString("READING_GOALS_MERGE_MODE"),
			RemoteRoot:            v.GetString("REMOTE_ROOT"),
		},
	}
}
