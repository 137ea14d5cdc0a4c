package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedMap(t *testing.T) {
	t.Setenv("COURSEFOX_TEST_KEY", "from-os")
	Env = map[string]string{"COURSEFOX_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, "from-file", GetEnv("COURSEFOX_TEST_KEY", "def"))

	Env = nil
	assert.Equal(t, "from-os", GetEnv("COURSEFOX_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("COURSEFOX_TEST_MISSING", "def"))
}

func TestGetIntAndDuration(t *testing.T) {
	Env = map[string]string{
		"N":       "42",
		"BAD_N":   "forty",
		"D":       "2m",
		"D_SECS":  "15",
		"BAD_DUR": "soon",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 42, GetInt("N", 1))
	assert.Equal(t, 1, GetInt("BAD_N", 1))
	assert.Equal(t, 7, GetInt("MISSING", 7))

	assert.Equal(t, 2*time.Minute, GetDuration("D", time.Second))
	assert.Equal(t, 15*time.Second, GetDuration("D_SECS", time.Second))
	assert.Equal(t, time.Second, GetDuration("BAD_DUR", time.Second))
}
