package config

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Interview InterviewConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL      string
	ExtractModel string
}

type StorageConfig struct {
	DataDir string
}

type InterviewConfig struct {
	// IdleTimeout is how long a capturing session may sit without activity
	// before the sweeper pauses it. Go duration string.
	IdleTimeout string
	// SweepInterval is how often the idle sweeper runs. Go duration string.
	SweepInterval string
	// DefaultTemplate starts sessions when no template is named.
	DefaultTemplate string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Ollama: OllamaConfig{
			BaseURL:      "http://localhost:11434",
			ExtractModel: "phi3.5",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Interview: InterviewConfig{
			IdleTimeout:   "30m",
			SweepInterval: "1m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.soulforge.app).
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/soulforge/config.json.
//
// Environment variables (SOULFORGE_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
