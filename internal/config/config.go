package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

type Config struct {
	LogLevel       string
	Debug          bool
	ServiceName    string
	Environment    string
	Hostname       string
	ServerPort     string
	AllowedOrigins []string

	// Interaction log
	LogDir string

	// Model backend
	ModelBackend        string
	ModelName           string
	ModelBaseURL        string
	ModelAPIKey         string
	GeminiAPIKeys       []string
	ModelWorkers        int
	ModelMaxPromptChars int
	ModelSystemPrompt   string
	ModelPadTokenID     *int
	ModelEOSTokenID     *int
	ModelLoadTimeout    time.Duration

	// Generation defaults, optionally overridden by GenerationConfigFile
	GenerationConfigFile string
	Generation           GenerationDefaults

	// Optional postgres mirror of the interaction log
	DatabaseURL string
	WorkerCount int
	BatchSize   int
}

// GenerationDefaults seeds the generation config store at startup.
type GenerationDefaults struct {
	MaxLength   int     `toml:"max_length"`
	Temperature float64 `toml:"temperature"`
	DoSample    bool    `toml:"do_sample"`
	PadTokenID  *int    `toml:"pad_token_id"`
}

func DefaultGeneration() GenerationDefaults {
	return GenerationDefaults{
		MaxLength:   500,
		Temperature: 0.7,
		DoSample:    true,
	}
}

func LoadConfig() (*Config, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	debug := os.Getenv("DEBUG")
	if debug == "" {
		debug = "false"
	}

	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName == "" {
		serviceName = "minivault"
	}

	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		hostname = "minivault"
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8000"
	}

	allowedOrigins := []string{"*"}
	if ao := os.Getenv("ALLOWED_ORIGINS"); ao != "" {
		allowedOrigins = splitList(ao)
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	backend := strings.ToLower(os.Getenv("MODEL_BACKEND"))
	if backend == "" {
		backend = BackendOpenAI
	}
	switch backend {
	case BackendOpenAI, BackendGemini, BackendNone:
	default:
		return nil, fmt.Errorf("unknown MODEL_BACKEND %q", backend)
	}

	modelName := os.Getenv("MODEL_NAME")
	if modelName == "" {
		modelName = "Qwen/Qwen2-0.5B-Instruct"
	}

	modelBaseURL := os.Getenv("MODEL_BASE_URL")
	if modelBaseURL == "" {
		modelBaseURL = "http://localhost:8080/v1"
	}

	geminiAPIKeys := splitList(os.Getenv("GEMINI_API_KEYS"))
	if backend == BackendGemini && len(geminiAPIKeys) == 0 {
		return nil, fmt.Errorf("GEMINI_API_KEYS is required when MODEL_BACKEND=%s", BackendGemini)
	}

	padTokenID, err := getEnvOptionalInt("MODEL_PAD_TOKEN_ID")
	if err != nil {
		return nil, err
	}
	eosTokenID, err := getEnvOptionalInt("MODEL_EOS_TOKEN_ID")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:             logLevel,
		Debug:                debug == "true",
		ServiceName:          serviceName,
		Environment:          environment,
		Hostname:             hostname,
		ServerPort:           serverPort,
		AllowedOrigins:       allowedOrigins,
		LogDir:               logDir,
		ModelBackend:         backend,
		ModelName:            modelName,
		ModelBaseURL:         modelBaseURL,
		ModelAPIKey:          os.Getenv("MODEL_API_KEY"),
		GeminiAPIKeys:        geminiAPIKeys,
		ModelWorkers:         getEnvInt("MODEL_WORKERS", 1),
		ModelMaxPromptChars:  getEnvInt("MODEL_MAX_PROMPT_CHARS", 8192),
		ModelSystemPrompt:    os.Getenv("MODEL_SYSTEM_PROMPT"),
		ModelPadTokenID:      padTokenID,
		ModelEOSTokenID:      eosTokenID,
		ModelLoadTimeout:     getEnvDuration("MODEL_LOAD_TIMEOUT", 60*time.Second),
		GenerationConfigFile: os.Getenv("GENERATION_CONFIG_FILE"),
		Generation:           DefaultGeneration(),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		WorkerCount:          getEnvInt("WORKER_COUNT", 10),
		BatchSize:            getEnvInt("BATCH_SIZE", 100),
	}

	if cfg.ModelWorkers < 1 {
		cfg.ModelWorkers = 1
	}

	if cfg.GenerationConfigFile != "" {
		gen, err := LoadGenerationDefaults(cfg.GenerationConfigFile, cfg.Generation)
		if err != nil {
			return nil, err
		}
		cfg.Generation = gen
	}

	return cfg, nil
}

// LoadGenerationDefaults overlays the keys present in a TOML file onto base.
func LoadGenerationDefaults(path string, base GenerationDefaults) (GenerationDefaults, error) {
	out := base
	if _, err := toml.DecodeFile(path, &out); err != nil {
		return base, fmt.Errorf("failed to read generation config %s: %w", path, err)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvOptionalInt(key string) (*int, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return &parsed, nil
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
