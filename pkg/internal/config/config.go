package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultDisplayName = "Meeting Automator Bot"

type Settings struct {
	Bind     string
	GrpcBind string

	Database DatabaseSettings
	Security SecuritySettings
	Sessions SessionSettings
	Paths    PathSettings
	Browser  BrowserSettings
	Speech   SpeechSettings
	Audio    AudioSettings
	Logging  LoggingSettings

	PrintRoutes bool
}

type DatabaseSettings struct {
	Driver    string
	Dsn       string
	MongoUri  string
	MongoName string
}

type SecuritySettings struct {
	Secret        string
	TokenDuration time.Duration
}

type SessionSettings struct {
	MaxDuration time.Duration
	DisplayName string
	Location    *time.Location
}

type PathSettings struct {
	Transcripts         string
	Screenshots         string
	ScreenshotRetention time.Duration
}

type BrowserSettings struct {
	Headless bool
	ExecPath string
	Width    int
	Height   int
}

type SpeechSettings struct {
	Engine      string
	Language    string
	MinSpeakers int
	MaxSpeakers int
	// Credentials is a service account file; empty uses the ambient
	// application default credentials.
	Credentials string
}

type AudioSettings struct {
	Source      string
	PulseSource string
}

type LoggingSettings struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func init() {
	registerDefaults()
}

func registerDefaults() {
	viper.SetDefault("bind", "0.0.0.0:8445")
	viper.SetDefault("grpc_bind", "0.0.0.0:7445")
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.mongo_name", "autojoin")
	viper.SetDefault("security.token_duration", "720h")
	viper.SetDefault("sessions.max_duration", "3h")
	viper.SetDefault("sessions.display_name", DefaultDisplayName)
	viper.SetDefault("sessions.timezone", "Local")
	viper.SetDefault("paths.transcripts", "transcriptions")
	viper.SetDefault("paths.screenshots", "debug_screenshots")
	viper.SetDefault("paths.screenshot_retention", "168h")
	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.width", 1920)
	viper.SetDefault("browser.height", 1080)
	viper.SetDefault("speech.engine", "none")
	viper.SetDefault("speech.language", "en-US")
	viper.SetDefault("speech.min_speakers", 2)
	viper.SetDefault("speech.max_speakers", 6)
	viper.SetDefault("audio.source", "none")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.max_size", 64)
	viper.SetDefault("logging.max_backups", 5)
}

// Setup points viper at settings.toml in the working directory or its parent
// and reads it. Environment variables prefixed with AUTOJOIN_ override keys.
func Setup(explicitPath string) error {
	if explicitPath != "" {
		viper.SetConfigFile(explicitPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.SetConfigName("settings")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("autojoin")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return viper.ReadInConfig()
}

// Load materializes the current viper state into typed settings.
func Load() (Settings, error) {
	location, err := time.LoadLocation(viper.GetString("sessions.timezone"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid sessions.timezone: %w", err)
	}

	settings := Settings{
		Bind:     viper.GetString("bind"),
		GrpcBind: viper.GetString("grpc_bind"),
		Database: DatabaseSettings{
			Driver:    strings.ToLower(viper.GetString("database.driver")),
			Dsn:       viper.GetString("database.dsn"),
			MongoUri:  viper.GetString("database.mongo_uri"),
			MongoName: viper.GetString("database.mongo_name"),
		},
		Security: SecuritySettings{
			Secret:        viper.GetString("security.secret"),
			TokenDuration: viper.GetDuration("security.token_duration"),
		},
		Sessions: SessionSettings{
			MaxDuration: viper.GetDuration("sessions.max_duration"),
			DisplayName: viper.GetString("sessions.display_name"),
			Location:    location,
		},
		Paths: PathSettings{
			Transcripts:         viper.GetString("paths.transcripts"),
			Screenshots:         viper.GetString("paths.screenshots"),
			ScreenshotRetention: viper.GetDuration("paths.screenshot_retention"),
		},
		Browser: BrowserSettings{
			Headless: viper.GetBool("browser.headless"),
			ExecPath: viper.GetString("browser.exec_path"),
			Width:    viper.GetInt("browser.width"),
			Height:   viper.GetInt("browser.height"),
		},
		Speech: SpeechSettings{
			Engine:      strings.ToLower(viper.GetString("speech.engine")),
			Language:    viper.GetString("speech.language"),
			MinSpeakers: viper.GetInt("speech.min_speakers"),
			MaxSpeakers: viper.GetInt("speech.max_speakers"),
			Credentials: viper.GetString("speech.credentials"),
		},
		Audio: AudioSettings{
			Source:      strings.ToLower(viper.GetString("audio.source")),
			PulseSource: viper.GetString("audio.pulse_source"),
		},
		Logging: LoggingSettings{
			Level:      viper.GetString("logging.level"),
			File:       viper.GetString("logging.file"),
			MaxSizeMB:  viper.GetInt("logging.max_size"),
			MaxBackups: viper.GetInt("logging.max_backups"),
		},
		PrintRoutes: viper.GetBool("debug.print_routes"),
	}

	return settings, settings.Validate()
}

func (v Settings) Validate() error {
	switch v.Database.Driver {
	case "postgres":
		if v.Database.Dsn == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "mongo":
		if v.Database.MongoUri == "" {
			return fmt.Errorf("database.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", v.Database.Driver)
	}
	if v.Sessions.MaxDuration <= 0 {
		return fmt.Errorf("sessions.max_duration must be positive")
	}
	switch v.Speech.Engine {
	case "none", "google":
	default:
		return fmt.Errorf("unsupported speech.engine %q", v.Speech.Engine)
	}
	switch v.Audio.Source {
	case "none", "pulse":
	default:
		return fmt.Errorf("unsupported audio.source %q", v.Audio.Source)
	}
	return nil
}
