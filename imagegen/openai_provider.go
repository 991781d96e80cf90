package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"batchgen/core"
	"batchgen/logging"
	"batchgen/orchestrator"
	"batchgen/reference"
)

// OpenAIBackend implements orchestrator.GenerationCapability with the
// OpenAI Images API, or an Azure OpenAI deployment when BaseURL points at
// Azure. Images are requested as base64; a response carrying only a URL is
// downloaded.
//
// Thread Safety: OpenAIBackend is safe for concurrent use.
// The underlying OpenAI client handles connection pooling.
type OpenAIBackend struct {
	client *openai.Client
	http   *http.Client
	model  string
	size   string
	azure  bool
	logger *logging.Logger
}

// OpenAIConfig holds configuration specific to the OpenAI backend.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the image model to use (default: dall-e-3)
	Model string

	// Size is used when the run's aspect ratio has no size mapping
	// (default: 1024x1024)
	Size string

	// AzureDeployment names the deployment used for every request when
	// BaseURL is an Azure endpoint (required there)
	AzureDeployment string

	// APIVersion is the Azure API version (default: DefaultAzureAPIVersion)
	APIVersion string

	HTTPClient *http.Client
}

// DefaultOpenAIConfig returns sensible defaults for OpenAI image generation.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "dall-e-3",
		Size:    openai.CreateImageSize1024x1024,
	}
}

// OpenAIConfigFromCore maps application configuration onto an OpenAIConfig.
func OpenAIConfigFromCore(cfg *core.Config) OpenAIConfig {
	c := DefaultOpenAIConfig()
	c.APIKey = cfg.OpenAIAPIKey
	if cfg.OpenAIBaseURL != "" {
		c.BaseURL = cfg.OpenAIBaseURL
	}
	if cfg.OpenAIImageModel != "" {
		c.Model = cfg.OpenAIImageModel
	}
	if cfg.OpenAIImageSize != "" {
		c.Size = cfg.OpenAIImageSize
	}
	c.AzureDeployment = cfg.OpenAIAzureDeployment
	c.APIVersion = cfg.OpenAIAPIVersion
	c.HTTPClient = core.GetHTTPClient(cfg, cfg.RequestTimeout)
	return c
}

// NewOpenAIBackend creates an OpenAI image generation backend.
//
// Example:
//
//	backend, err := NewOpenAIBackend(OpenAIConfigFromCore(cfg), logger)
//	if err != nil {
//	    return err
//	}
//	data, err := backend.Generate(ctx, "a sunset over mountains", settings)
func NewOpenAIBackend(cfg OpenAIConfig, logger *logging.Logger) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	def := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Size == "" {
		cfg.Size = def.Size
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	azure := IsAzureEndpoint(cfg.BaseURL)
	var clientConfig openai.ClientConfig
	if azure {
		if cfg.AzureDeployment == "" {
			return nil, ErrMissingDeployment
		}
		clientConfig = azureClientConfig(cfg)
		cfg.Model = cfg.AzureDeployment
	} else {
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	clientConfig.HTTPClient = httpClient

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientConfig),
		http:   httpClient,
		model:  cfg.Model,
		size:   cfg.Size,
		azure:  azure,
		logger: logger.Named("openai"),
	}, nil
}

// Generate creates one image from the prompt.
func (p *OpenAIBackend) Generate(ctx context.Context, prompt string, s orchestrator.Settings) ([]byte, error) {
	return p.create(ctx, prompt, s)
}

// GenerateConditioned creates one image from the prompt with the reference
// captions appended to it.
func (p *OpenAIBackend) GenerateConditioned(ctx context.Context, prompt string, refs []reference.ResolvedReference, s orchestrator.Settings) ([]byte, error) {
	return p.create(ctx, ConditionedPrompt(prompt, refs), s)
}

func (p *OpenAIBackend) create(ctx context.Context, prompt string, s orchestrator.Settings) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &BackendError{Op: "generate", Reason: "Empty prompt"}
	}

	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.model,
		Size:           SizeFor(s.AspectRatio, p.size),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	}
	// style is a dall-e-3 parameter; dall-e-2 and gpt-image-1 reject it
	if isDalleModel(p.model) {
		req.Style = openai.CreateImageStyleVivid
	}

	start := time.Now()
	response, err := p.client.CreateImage(ctx, req)
	if err != nil {
		return nil, &BackendError{Op: "generate", Reason: reasonFor(err), Err: err}
	}
	p.logger.Debug("image generated",
		zap.String("model", p.model),
		zap.String("size", req.Size),
		zap.Duration("duration", time.Since(start)))

	if len(response.Data) == 0 {
		return nil, &BackendError{Op: "generate", Reason: "No image data"}
	}
	encoded := response.Data[0].B64JSON
	if encoded == "" {
		if url := response.Data[0].URL; url != "" {
			return download(ctx, p.http, url)
		}
		return nil, &BackendError{Op: "generate", Reason: "No image data"}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &BackendError{Op: "generate", Reason: "Bad image data", Err: err}
	}
	return data, nil
}

// Model returns the configured image model name, or the deployment name
// for Azure.
func (p *OpenAIBackend) Model() string {
	return p.model
}

// IsAzure reports whether requests go to an Azure OpenAI deployment.
func (p *OpenAIBackend) IsAzure() bool {
	return p.azure
}

// reasonFor turns a client error into the short text shown per image.
func reasonFor(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Sprintf("HTTP %d", apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Sprintf("HTTP %d", reqErr.HTTPStatusCode)
	}
	return orchestrator.ReasonOf(err)
}

var _ orchestrator.GenerationCapability = (*OpenAIBackend)(nil)
