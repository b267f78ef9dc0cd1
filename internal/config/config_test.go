package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battherm/battherm/internal/therm"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
zones: 5
current: -12.5
cooling:
  variant: liquid
control:
  controller: mpc
`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Zones)
	assert.Equal(t, -12.5, cfg.Current)
	assert.Equal(t, "liquid", cfg.Cooling.Variant)
	assert.Equal(t, "mpc", cfg.Control.Controller)
	// Untouched keys keep their defaults.
	assert.Equal(t, 45.0, cfg.Safety.TMax)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("zoness: 3\n"))
	assert.ErrorIs(t, err, therm.ErrConfigValidation)
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero zones", func(c *Config) { c.Zones = 0 }},
		{"negative dt", func(c *Config) { c.Dt = -1 }},
		{"bad scheme", func(c *Config) { c.Scheme = "midpoint" }},
		{"bad policy", func(c *Config) { c.StabilityPolicy = "ignore" }},
		{"zero resistance", func(c *Config) { c.Battery.Resistance = 0 }},
		{"inverted safety", func(c *Config) { c.Safety.TMax = c.Safety.TMin - 1 }},
		{"negative slack", func(c *Config) { c.Safety.SlackTol = -0.1 }},
		{"bad variant", func(c *Config) { c.Cooling.Variant = "peltier" }},
		{"inverted flow bounds", func(c *Config) {
			c.Cooling.Variant = "liquid"
			c.Cooling.Liquid.FlowMax = 0
			c.Cooling.Liquid.FlowMin = 1
		}},
		{"inverted melt window", func(c *Config) {
			c.Cooling.Variant = "pcm"
			c.Cooling.PCM.MeltHigh = c.Cooling.PCM.MeltLow
		}},
		{"bad controller", func(c *Config) { c.Control.Controller = "pid" }},
		{"zero horizon", func(c *Config) {
			c.Control.Controller = "mpc"
			c.Control.Horizon = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), therm.ErrConfigValidation)
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")

	cfg := Default()
	cfg.Current = -7.5
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestSetSweepParameters(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Set("current", -8))
	require.NoError(t, cfg.Set("flow_coeff", 1500))
	require.NoError(t, cfg.Set("melt_high", 37))

	assert.Equal(t, -8.0, cfg.Current)
	assert.Equal(t, 1500.0, cfg.Cooling.Liquid.FlowCoeff)
	assert.Equal(t, 37.0, cfg.Cooling.PCM.MeltHigh)

	assert.ErrorIs(t, cfg.Set("bogus", 1), therm.ErrConfigValidation)
}

func TestCloneIsolation(t *testing.T) {
	cfg := Default()
	c := cfg.Clone()
	c.Current = -99
	c.Cooling.Variant = "pcm"

	assert.Equal(t, -5.0, cfg.Current)
	assert.Equal(t, "passive", cfg.Cooling.Variant)
}

func TestPresets(t *testing.T) {
	require.NotEmpty(t, ListPresets())
	for _, name := range ListPresets() {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Nil(t, GetPreset("no-such-preset"))
}
