package imagegen

import (
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultAzureAPIVersion is used when OPENAI_API_VERSION is unset.
const DefaultAzureAPIVersion = "2024-02-01"

// IsAzureEndpoint reports whether endpoint is an Azure OpenAI resource URL.
// Matching is a case-insensitive substring test on the Azure domains.
func IsAzureEndpoint(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "openai.azure.com") ||
		strings.Contains(lower, "cognitiveservices.azure.com")
}

// isDalleModel reports whether a model or Azure deployment name is a
// DALL-E 3 model, the only one that takes a style parameter.
func isDalleModel(name string) bool {
	lower := strings.ToLower(name)
	return lower == openai.CreateImageModelDallE3 ||
		strings.Contains(lower, "dalle3") ||
		strings.Contains(lower, "dalle-3")
}

// azureClientConfig builds a client config routing every model to the
// configured deployment.
func azureClientConfig(cfg OpenAIConfig) openai.ClientConfig {
	c := openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.BaseURL, "/"))
	if cfg.APIVersion != "" {
		c.APIVersion = cfg.APIVersion
	} else {
		c.APIVersion = DefaultAzureAPIVersion
	}
	deployment := cfg.AzureDeployment
	c.AzureModelMapperFunc = func(string) string { return deployment }
	return c
}
