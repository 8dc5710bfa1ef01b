package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ricardolombre/acdn-elearning/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Player struct {
		SessionTTL time.Duration
		Policy     string
	}

	Redis struct {
		Addrs []string
	}
}

func defaults() testConfig {
	var c testConfig
	c.HTTP.Port = 8080
	c.Player.SessionTTL = time.Hour
	c.Player.Policy = "any_result"
	return c
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		yaml   string
		env    map[string]string
		assert func(t *testing.T, c testConfig)
	}{
		"file should override defaults": {
			yaml: "http:\n  port: 9090\nplayer:\n  sessionttl: 30m\nredis:\n  addrs: [\"localhost:6379\"]\n",
			assert: func(t *testing.T, c testConfig) {
				assert.EqualValues(t, 9090, c.HTTP.Port)
				assert.Equal(t, 30*time.Minute, c.Player.SessionTTL)
				assert.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs)
				assert.Equal(t, "any_result", c.Player.Policy, "keys absent from the file keep their default")
			},
		},

		"environment should override the file": {
			yaml: "http:\n  port: 9090\n",
			env:  map[string]string{"TEST_HTTP_PORT": "7070", "TEST_PLAYER_POLICY": "passing_result"},
			assert: func(t *testing.T, c testConfig) {
				assert.EqualValues(t, 7070, c.HTTP.Port)
				assert.Equal(t, "passing_result", c.Player.Policy)
			},
		},

		"environment should override keys the file leaves out": {
			yaml: "redis:\n  addrs: [\"localhost:6379\"]\n",
			env:  map[string]string{"TEST_PLAYER_SESSIONTTL": "5m"},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, 5*time.Minute, c.Player.SessionTTL)
				assert.EqualValues(t, 8080, c.HTTP.Port)
				assert.Equal(t, "any_result", c.Player.Policy)
			},
		},

		"environment without the prefix should be ignored": {
			yaml: "http:\n  port: 9090\n",
			env:  map[string]string{"HTTP_PORT": "7070"},
			assert: func(t *testing.T, c testConfig) {
				assert.EqualValues(t, 9090, c.HTTP.Port)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			file := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(file, []byte(tt.yaml), 0o600))

			c := defaults()
			require.NoError(t, config.Load(file, &c, config.WithEnvPrefix("TEST")))

			tt.assert(t, c)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	c := defaults()
	err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), &c)

	assert.Error(t, err)
}
