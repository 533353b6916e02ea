package environment

import (
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/stretchr/testify/require"
)

var env, _ = CreateENV()

func TestEnvironment(t *testing.T) {
	// no parallel
	defer os.Unsetenv(envKey)
	require.Equal(t, Development, Environment())
	environmentList := []string{Production, Staging, Testing, Development}
	for _, environment := range environmentList {
		os.Setenv(envKey, environment)
		require.Equal(t, environment, Environment())
	}
	os.Setenv(envKey, "unknown")
	require.Equal(t, Development, Environment())
}

func TestCreateENV(t *testing.T) {
	t.Parallel()
	t.Run("option error", func(t *testing.T) {
		t.Parallel()
		env, err := CreateENV(func(_ *ENVConfig) error {
			return errors.New("error")
		})
		require.Error(t, err)
		require.Nil(t, env)
	})
	t.Run("success no option", func(t *testing.T) {
		t.Parallel()
		env, err := CreateENV()
		require.Nil(t, err)
		require.Empty(t, env.Config.Prefix)
		require.Equal(t, "EMITTER_HOST", env.Key("EMITTER_HOST"))
	})
	t.Run("success with prefix", func(t *testing.T) {
		t.Parallel()
		env, err := CreateENV(SetPrefixOption("CHAT_"))
		require.Nil(t, err)
		require.Equal(t, "CHAT", env.Config.Prefix)
		require.Equal(t, "CHAT_EMITTER_HOST", env.Key("EMITTER_HOST"))
	})
}

func TestEVHelpers(t *testing.T) {
	t.Parallel()
	os.Setenv("ENVTEST_STRING", "relay")
	os.Setenv("ENVTEST_INT", "-42")
	os.Setenv("ENVTEST_INT64", "999999999999")
	os.Setenv("ENVTEST_UINT64", "7")
	os.Setenv("ENVTEST_BOOL", "TRUE")
	os.Setenv("ENVTEST_DURATION", "1500ms")
	os.Setenv("ENVTEST_INVALID", "invalid")

	require.Equal(t, "relay", env.EVString("ENVTEST_STRING", "none"))
	require.Equal(t, "none", env.EVString("ENVTEST_NOT_EXIST", "none"))

	i, err := env.EVInt("ENVTEST_INT", 0)
	require.Nil(t, err)
	require.Equal(t, -42, i)
	i, err = env.EVInt("ENVTEST_NOT_EXIST", 3)
	require.Nil(t, err)
	require.Equal(t, 3, i)
	_, err = env.EVInt("ENVTEST_INVALID", 0)
	require.Error(t, err)

	i64, err := env.EVInt64("ENVTEST_INT64", 0)
	require.Nil(t, err)
	require.Equal(t, int64(999999999999), i64)

	u64, err := env.EVUInt64("ENVTEST_UINT64", 0)
	require.Nil(t, err)
	require.Equal(t, uint64(7), u64)

	b, err := env.EVBool("ENVTEST_BOOL", false)
	require.Nil(t, err)
	require.True(t, b)
	_, err = env.EVBool("ENVTEST_INVALID", false)
	require.Error(t, err)

	d, err := env.EVDuration("ENVTEST_DURATION", time.Second)
	require.Nil(t, err)
	require.Equal(t, 1500*time.Millisecond, d)
	d, err = env.EVDuration("ENVTEST_NOT_EXIST", time.Second)
	require.Nil(t, err)
	require.Equal(t, time.Second, d)
}

func TestParse(t *testing.T) {
	t.Parallel()
	type sub struct {
		Channel string `env:"PARSETEST_CHANNEL"`
	}
	type config struct {
		Host    string        `env:"PARSETEST_HOST"`
		Port    int           `env:"PARSETEST_PORT"`
		Workers uint          `env:"PARSETEST_WORKERS"`
		Ratio   float64       `env:"PARSETEST_RATIO"`
		Encode  bool          `env:"PARSETEST_ENCODE"`
		Timeout time.Duration `env:"PARSETEST_TIMEOUT"`
		Skipped string        `env:"-"`
		Untaged string
		Sub     sub
		SubPtr  *sub
	}

	t.Run("error not pointer", func(t *testing.T) {
		t.Parallel()
		err := env.Parse(config{})
		require.Error(t, err)
	})
	t.Run("error not struct", func(t *testing.T) {
		t.Parallel()
		data := 1
		err := env.Parse(&data)
		require.Error(t, err)
		require.Equal(t, 1, data)
	})
	t.Run("error convert", func(t *testing.T) {
		t.Parallel()
		os.Setenv("PARSETEST_INVALID_PORT", "invalid")
		data := struct {
			Port int `env:"PARSETEST_INVALID_PORT"`
		}{Port: 1}
		err := env.Parse(&data)
		require.Error(t, err)
		require.Equal(t, 1, data.Port)
	})
	t.Run("error unsupported type", func(t *testing.T) {
		t.Parallel()
		os.Setenv("PARSETEST_SLICE", "a,b")
		data := struct {
			Rooms []string `env:"PARSETEST_SLICE"`
		}{}
		err := env.Parse(&data)
		require.Error(t, err)
	})
	t.Run("error validator", func(t *testing.T) {
		t.Parallel()
		err := env.Parse(&config{}, func(interface{}) error {
			return errors.New("invalid config")
		})
		require.Error(t, err)
	})
	t.Run("success", func(t *testing.T) {
		t.Parallel()
		os.Setenv("PARSETEST_HOST", "http://relay")
		os.Setenv("PARSETEST_PORT", "8080")
		os.Setenv("PARSETEST_WORKERS", "4")
		os.Setenv("PARSETEST_RATIO", "0.5")
		os.Setenv("PARSETEST_ENCODE", "true")
		os.Setenv("PARSETEST_TIMEOUT", "2s")
		os.Setenv("PARSETEST_CHANNEL", "chat")
		data := config{Host: "default", Skipped: "keep", SubPtr: &sub{}}
		validated := false
		err := env.Parse(&data, nil, func(v interface{}) error {
			_, validated = v.(*config)
			return nil
		})
		require.Nil(t, err)
		require.True(t, validated)
		require.Equal(t, "http://relay", data.Host)
		require.Equal(t, 8080, data.Port)
		require.Equal(t, uint(4), data.Workers)
		require.Equal(t, 0.5, data.Ratio)
		require.True(t, data.Encode)
		require.Equal(t, 2*time.Second, data.Timeout)
		require.Equal(t, "keep", data.Skipped)
		require.Equal(t, "chat", data.Sub.Channel)
		require.Equal(t, "chat", data.SubPtr.Channel)
	})
	t.Run("success prefix", func(t *testing.T) {
		t.Parallel()
		os.Setenv("ROOMS_PARSETEST_PREFIXED", "prefixed")
		env, err := CreateENV(SetPrefixOption("ROOMS"))
		require.Nil(t, err)
		data := struct {
			Value string `env:"PARSETEST_PREFIXED"`
		}{}
		require.Nil(t, env.Parse(&data))
		require.Equal(t, "prefixed", data.Value)
	})
}
