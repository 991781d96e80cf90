package whisk

import (
	"context"
	"encoding/base64"
	"math"
	"math/rand/v2"

	"batchgen/orchestrator"
	"batchgen/reference"
)

// boardCategory is the media category of prompt-only generations.
const boardCategory = "MEDIA_CATEGORY_BOARD"

type imageModelSettings struct {
	ImageModel  string `json:"imageModel"`
	AspectRatio string `json:"aspectRatio"`
}

type generateRequest struct {
	ClientContext      clientContext      `json:"clientContext"`
	ImageModelSettings imageModelSettings `json:"imageModelSettings"`
	Prompt             string             `json:"prompt"`
	MediaCategory      string             `json:"mediaCategory"`
	Seed               int64              `json:"seed"`
}

type recipeMediaInput struct {
	Caption    string `json:"caption"`
	MediaInput struct {
		MediaCategory     string `json:"mediaCategory"`
		MediaGenerationID string `json:"mediaGenerationId"`
	} `json:"mediaInput"`
}

type recipeRequest struct {
	ClientContext      clientContext      `json:"clientContext"`
	ImageModelSettings imageModelSettings `json:"imageModelSettings"`
	UserInstruction    string             `json:"userInstruction"`
	RecipeMediaInputs  []recipeMediaInput `json:"recipeMediaInputs"`
	Seed               int64              `json:"seed"`
}

type generateResponse struct {
	ImagePanels []struct {
		GeneratedImages []struct {
			EncodedImage string `json:"encodedImage"`
		} `json:"generatedImages"`
	} `json:"imagePanels"`
}

// randomSeed returns a seed in [1, 2^31-1].
func randomSeed() int64 {
	return rand.Int64N(math.MaxInt32) + 1
}

func (c *Client) generationContext() clientContext {
	return clientContext{WorkflowID: "", Tool: toolName, SessionID: c.sessionID()}
}

// Generate creates one image from the prompt alone.
func (c *Client) Generate(ctx context.Context, prompt string, s orchestrator.Settings) ([]byte, error) {
	req := generateRequest{
		ClientContext:      c.generationContext(),
		ImageModelSettings: imageModelSettings{ImageModel: s.ModelFor(0), AspectRatio: s.AspectRatio},
		Prompt:             prompt,
		MediaCategory:      boardCategory,
		Seed:               randomSeed(),
	}
	return c.runGeneration(ctx, "generate", c.cfg.BaseURL+"/v1/whisk:generateImage", req)
}

// GenerateConditioned creates one image from the prompt and the given
// references. The model depends on how many references are attached.
func (c *Client) GenerateConditioned(ctx context.Context, prompt string, refs []reference.ResolvedReference, s orchestrator.Settings) ([]byte, error) {
	inputs := make([]recipeMediaInput, len(refs))
	for i, ref := range refs {
		inputs[i].Caption = ref.Caption
		inputs[i].MediaInput.MediaCategory = ref.Category.APIValue()
		inputs[i].MediaInput.MediaGenerationID = ref.AssetID
	}

	req := recipeRequest{
		ClientContext:      c.generationContext(),
		ImageModelSettings: imageModelSettings{ImageModel: s.ModelFor(len(refs)), AspectRatio: s.AspectRatio},
		UserInstruction:    prompt,
		RecipeMediaInputs:  inputs,
		Seed:               randomSeed(),
	}
	return c.runGeneration(ctx, "recipe", c.cfg.BaseURL+"/v1/whisk:runImageRecipe", req)
}

func (c *Client) runGeneration(ctx context.Context, op, url string, req any) ([]byte, error) {
	var resp generateResponse
	status, err := c.postJSON(ctx, c.cfg.RequestTimeout, url, req, &resp)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, statusError(op, "", status)
	}

	if len(resp.ImagePanels) == 0 {
		return nil, &APIError{Op: op, StatusCode: status, Reason: "No panels"}
	}
	images := resp.ImagePanels[0].GeneratedImages
	if len(images) == 0 || images[0].EncodedImage == "" {
		return nil, &APIError{Op: op, StatusCode: status, Reason: "No image data"}
	}

	data, err := base64.StdEncoding.DecodeString(images[0].EncodedImage)
	if err != nil {
		return nil, &APIError{Op: op, StatusCode: status, Reason: "Bad image data", Err: err}
	}
	return data, nil
}
