package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	registerDefaults()

	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
dsn = "host=localhost user=autojoin"
`), 0o600))
	require.NoError(t, Setup(path))

	settings, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres", settings.Database.Driver)
	require.Equal(t, 3*time.Hour, settings.Sessions.MaxDuration)
	require.Equal(t, DefaultDisplayName, settings.Sessions.DisplayName)
	require.Equal(t, "none", settings.Speech.Engine)
	require.True(t, settings.Browser.Headless)
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		contains string
	}{
		{
			name:     "missing dsn",
			settings: Settings{Database: DatabaseSettings{Driver: "postgres"}, Sessions: SessionSettings{MaxDuration: time.Hour}},
			contains: "database.dsn",
		},
		{
			name:     "unknown driver",
			settings: Settings{Database: DatabaseSettings{Driver: "sqlite"}, Sessions: SessionSettings{MaxDuration: time.Hour}},
			contains: "database.driver",
		},
		{
			name: "unknown engine",
			settings: Settings{
				Database: DatabaseSettings{Driver: "mongo", MongoUri: "mongodb://localhost"},
				Sessions: SessionSettings{MaxDuration: time.Hour},
				Speech:   SpeechSettings{Engine: "whisper"},
			},
			contains: "speech.engine",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.settings.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.contains)
		})
	}
}
