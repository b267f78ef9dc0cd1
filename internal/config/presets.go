package config

// Presets are named starting configurations for common scenarios.
var presets = map[string]func() *Config{
	"discharge-passive": func() *Config {
		return Default()
	},
	"fast-discharge-liquid": func() *Config {
		c := Default()
		c.Current = -10
		c.Steps = 60
		c.Cooling.Variant = "liquid"
		c.Control.Controller = "mpc"
		return c
	},
	"pcm-buffer": func() *Config {
		c := Default()
		c.Current = -8
		c.Steps = 120
		c.Cooling.Variant = "pcm"
		return c
	},
	"electrochem-coupled": func() *Config {
		c := Default()
		c.Electrochem.Enabled = true
		c.Steps = 40
		return c
	},
}

func GetPreset(name string) *Config {
	fn, ok := presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}
