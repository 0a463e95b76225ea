package config

// Config represents the xferwatch CLI configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	Step        int      `mapstructure:"step"`
	Correction  bool     `mapstructure:"correction"`
	ReportRaw   bool     `mapstructure:"report-raw"`
	Markers     []string `mapstructure:"markers"`
	Sizes       string   `mapstructure:"sizes"`
	Progress    string   `mapstructure:"progress"`
	Transport   string   `mapstructure:"transport"`
	Concurrency int      `mapstructure:"concurrency"`
	StatusAddr  string   `mapstructure:"status-addr"`
	History     string   `mapstructure:"history"`
	Redis       Redis    `mapstructure:"redis"`
}

// Redis holds settings for the Redis result sink.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

// Defaults returns the settings written by "config init" and registered
// as Viper defaults.
func Defaults() map[string]any {
	return map[string]any{
		"step":        10,
		"correction":  true,
		"report-raw":  false,
		"markers":     []string{".data.br", ".wasm.br"},
		"progress":    "auto",
		"transport":   "stream",
		"concurrency": 4,
		"redis": map[string]any{
			"prefix": "xferwatch",
			// addr, password omitted - typically set via flags or env vars
		},
	}
}
