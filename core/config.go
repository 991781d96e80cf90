package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Generation backends selectable through GENERATION_BACKEND.
const (
	BackendWhisk  = "whisk"
	BackendOpenAI = "openai"
)

// Aspect ratios accepted by ASPECT_RATIO, keyed to the remote enum values.
var aspectRatios = map[string]string{
	"landscape": "IMAGE_ASPECT_RATIO_LANDSCAPE",
	"portrait":  "IMAGE_ASPECT_RATIO_PORTRAIT",
	"square":    "IMAGE_ASPECT_RATIO_SQUARE",
}

// MaxImagesPerPrompt bounds IMAGES_PER_PROMPT and the -n flag.
const MaxImagesPerPrompt = 8

// Config holds all configuration values
type Config struct {
	// Backend selection
	Backend string

	// Whisk credentials and endpoints
	WhiskCookie      string
	WhiskAccessToken string
	WhiskBaseURL     string // aisandbox generation API
	WhiskLabsURL     string // labs.google session, caption and upload API

	// Model settings
	ImageModel     string
	SingleRefModel string
	MultiRefModel  string
	AspectRatio    string // remote enum, e.g. IMAGE_ASPECT_RATIO_LANDSCAPE

	// OpenAI backend
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIImageModel string
	OpenAIImageSize  string

	// Azure OpenAI, used when OpenAIBaseURL is an Azure resource
	OpenAIAzureDeployment string
	OpenAIAPIVersion      string

	// Run shaping
	ImagesPerPrompt          int
	OutputDir                string
	ImageDelay               time.Duration
	RowDelay                 time.Duration
	RequestTimeout           time.Duration
	UploadTimeout            time.Duration
	UploadConcurrency        int
	MaxReferenceDimension    int
	RequestsPerMinute        int
	FailAllOnDependencyError bool

	// Supporting infrastructure
	HistoryDB            string
	MetricsAddr          string
	LogFile              string
	LogLevel             string
	DevMode              bool
	ShutdownTimeout      time.Duration
	AllowSelfSignedCerts bool
}

// LoadConfig reads configuration from the environment and validates it.
// Call godotenv.Load beforehand to pick up a .env file. Every validation
// failure is reported in a single ConfigError.
func LoadConfig() (*Config, error) {
	cfg, err := ReadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig reads the environment without validating it, for commands
// that need no backend credential (history, check). Only an unreadable
// WHISK_COOKIE_FILE is an error here.
func ReadConfig() (*Config, error) {
	cookie := os.Getenv("WHISK_COOKIE")
	if path := strings.TrimSpace(os.Getenv("WHISK_COOKIE_FILE")); cookie == "" && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ErrInvalidValue("WHISK_COOKIE_FILE", path, err.Error())
		}
		cookie = string(data)
	}

	ratioKey := strings.ToLower(GetEnvOrDefault("ASPECT_RATIO", "landscape"))

	cfg := &Config{
		Backend:          strings.ToLower(GetEnvOrDefault("GENERATION_BACKEND", BackendWhisk)),
		WhiskCookie:      strings.TrimSpace(cookie),
		WhiskAccessToken: strings.TrimSpace(os.Getenv("WHISK_ACCESS_TOKEN")),
		WhiskBaseURL:     GetEnvOrDefault("WHISK_BASE_URL", "https://aisandbox-pa.googleapis.com"),
		WhiskLabsURL:     GetEnvOrDefault("WHISK_LABS_URL", "https://labs.google"),

		ImageModel:     GetEnvOrDefault("IMAGE_MODEL", "imagen-3.0-generate-001"),
		SingleRefModel: GetEnvOrDefault("SINGLE_REF_MODEL", "GEM_PIX"),
		MultiRefModel:  GetEnvOrDefault("MULTI_REF_MODEL", "R2I"),
		AspectRatio:    aspectRatios[ratioKey],

		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:    GetEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIImageModel: GetEnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAIImageSize:  GetEnvOrDefault("OPENAI_IMAGE_SIZE", "1024x1024"),

		OpenAIAzureDeployment: strings.TrimSpace(os.Getenv("OPENAI_AZURE_DEPLOYMENT")),
		OpenAIAPIVersion:      strings.TrimSpace(os.Getenv("OPENAI_API_VERSION")),

		ImagesPerPrompt: ParseIntEnv("IMAGES_PER_PROMPT", 1),
		OutputDir:       GetEnvOrDefault("OUTPUT_DIR", "./output"),
		// 2s between images and 1s between rows keeps load on the remote service low
		ImageDelay:               ParseMillisEnv("IMAGE_DELAY_MS", 2000),
		RowDelay:                 ParseMillisEnv("ROW_DELAY_MS", 1000),
		RequestTimeout:           ParseDurationEnv("REQUEST_TIMEOUT", 60),
		UploadTimeout:            ParseDurationEnv("UPLOAD_TIMEOUT", 60),
		UploadConcurrency:        ParseIntEnv("UPLOAD_CONCURRENCY", 1),
		MaxReferenceDimension:    ParseIntEnv("MAX_REFERENCE_DIMENSION", 2048),
		RequestsPerMinute:        ParseIntEnv("REQUESTS_PER_MINUTE", 30),
		FailAllOnDependencyError: ParseBoolEnv("FAIL_ALL_ON_DEPENDENCY_ERROR", false),

		HistoryDB:            os.Getenv("HISTORY_DB"),
		MetricsAddr:          strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		LogFile:              GetEnvOrDefault("LOG_FILE", "batchgen.log"),
		LogLevel:             strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		DevMode:              ParseBoolEnv("DEV_MODE", false),
		ShutdownTimeout:      ParseDurationEnv("SHUTDOWN_TIMEOUT", 30),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
	}
	if _, set := os.LookupEnv("HISTORY_DB"); !set {
		cfg.HistoryDB = "./batchgen.db"
	}

	if cfg.AspectRatio == "" {
		// keep the raw value so Validate can name it
		cfg.AspectRatio = ratioKey
	}
	return cfg, nil
}

// Validate checks value ranges and that the selected backend has a credential.
func (c *Config) Validate() error {
	return joinConfigErrors(c.problems())
}

func (c *Config) problems() []*ConfigError {
	var problems []*ConfigError

	switch c.Backend {
	case BackendWhisk:
		if c.WhiskCookie == "" && c.WhiskAccessToken == "" {
			problems = append(problems, ErrMissingAuth(BackendWhisk))
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			problems = append(problems, ErrMissingAuth(BackendOpenAI))
		}
		if strings.Contains(strings.ToLower(c.OpenAIBaseURL), ".azure.com") && c.OpenAIAzureDeployment == "" {
			problems = append(problems, ErrMissingConfig("OPENAI_AZURE_DEPLOYMENT"))
		}
	default:
		problems = append(problems, ErrInvalidValue("GENERATION_BACKEND", c.Backend, "must be whisk or openai"))
	}

	if !knownAspectRatio(c.AspectRatio) {
		problems = append(problems, ErrInvalidValue("ASPECT_RATIO", c.AspectRatio, "must be landscape, portrait or square"))
	}
	if c.ImagesPerPrompt < 1 || c.ImagesPerPrompt > MaxImagesPerPrompt {
		problems = append(problems, ErrInvalidValue("IMAGES_PER_PROMPT",
			fmt.Sprint(c.ImagesPerPrompt), fmt.Sprintf("must be between 1 and %d", MaxImagesPerPrompt)))
	}
	if c.UploadConcurrency < 1 {
		problems = append(problems, ErrInvalidValue("UPLOAD_CONCURRENCY", fmt.Sprint(c.UploadConcurrency), "must be at least 1"))
	}
	if c.MaxReferenceDimension < 0 {
		problems = append(problems, ErrInvalidValue("MAX_REFERENCE_DIMENSION", fmt.Sprint(c.MaxReferenceDimension), "must not be negative"))
	}
	if c.RequestsPerMinute < 1 {
		problems = append(problems, ErrInvalidValue("REQUESTS_PER_MINUTE", fmt.Sprint(c.RequestsPerMinute), "must be at least 1"))
	}
	if c.OutputDir == "" {
		problems = append(problems, ErrMissingConfig("OUTPUT_DIR"))
	}
	return problems
}

func knownAspectRatio(enum string) bool {
	for _, v := range aspectRatios {
		if v == enum {
			return true
		}
	}
	return false
}

// AspectRatioFor maps a short ratio name (landscape, portrait, square) to
// the remote enum value. The second result is false for unknown names.
func AspectRatioFor(name string) (string, bool) {
	v, ok := aspectRatios[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg != nil && cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
