package whisk

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"batchgen/reference"
)

// DefaultCaption is adopted when captioning yields nothing.
const DefaultCaption = "No caption generated"

type clientContext struct {
	WorkflowID string `json:"workflowId"`
	Tool       string `json:"tool,omitempty"`
	SessionID  string `json:"sessionId"`
}

type rawMediaInput struct {
	MediaCategory string `json:"mediaCategory"`
	RawBytes      string `json:"rawBytes"`
}

type captionRequest struct {
	JSON struct {
		ClientContext clientContext `json:"clientContext"`
		CaptionInput  struct {
			CandidatesCount int           `json:"candidatesCount"`
			MediaInput      rawMediaInput `json:"mediaInput"`
		} `json:"captionInput"`
	} `json:"json"`
}

type uploadRequest struct {
	JSON struct {
		ClientContext    clientContext `json:"clientContext"`
		UploadMediaInput rawMediaInput `json:"uploadMediaInput"`
	} `json:"json"`
}

// trpcResponse unwraps the result.data.json.result envelope.
type trpcResponse[T any] struct {
	Result struct {
		Data struct {
			JSON struct {
				Result T `json:"result"`
			} `json:"json"`
		} `json:"data"`
	} `json:"result"`
}

type captionResult struct {
	Candidates []struct {
		Output string `json:"output"`
	} `json:"candidates"`
}

type uploadResult struct {
	UploadMediaGenerationID string `json:"uploadMediaGenerationId"`
}

// Upload captions and uploads a reference image, returning its media
// generation id. Captioning is best-effort; a failed caption never fails
// the upload.
func (c *Client) Upload(ctx context.Context, localPath string, category reference.Category) (string, string, error) {
	prepared, err := reference.PrepareImage(localPath, c.cfg.MaxReferenceDimension)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, reference.ErrNoLocalImage) {
			return "", "", &APIError{Op: "upload", Reason: "File not found", Err: err}
		}
		return "", "", &APIError{Op: "upload", Reason: "Read error", Err: err}
	}
	if prepared.Resized {
		c.logger.Debug("reference downscaled",
			zap.String("path", localPath),
			zap.Int("width", prepared.Width),
			zap.Int("height", prepared.Height))
	}

	media := rawMediaInput{
		MediaCategory: category.APIValue(),
		RawBytes:      "data:" + prepared.MimeType + ";base64," + base64.StdEncoding.EncodeToString(prepared.Data),
	}
	cc := clientContext{WorkflowID: captionWorkflowID, SessionID: c.sessionID()}

	caption := c.caption(ctx, cc, media)

	var req uploadRequest
	req.JSON.ClientContext = cc
	req.JSON.UploadMediaInput = media

	var resp trpcResponse[uploadResult]
	status, err := c.postJSON(ctx, c.cfg.UploadTimeout, c.cfg.LabsURL+"/fx/api/trpc/backbone.uploadImage", req, &resp)
	if err != nil {
		return "", "", err
	}
	if status != 200 {
		return "", "", statusError("upload", "Upload ", status)
	}

	mediaID := resp.Result.Data.JSON.Result.UploadMediaGenerationID
	if mediaID == "" {
		return "", "", &APIError{Op: "upload", StatusCode: status, Reason: "No Media ID returned"}
	}
	if caption == "" {
		caption = DefaultCaption
	}

	c.logger.Info("reference uploaded",
		zap.String("path", localPath),
		zap.String("category", category.String()))
	return mediaID, caption, nil
}

func (c *Client) caption(ctx context.Context, cc clientContext, media rawMediaInput) string {
	var req captionRequest
	req.JSON.ClientContext = cc
	req.JSON.CaptionInput.CandidatesCount = 1
	req.JSON.CaptionInput.MediaInput = media

	var resp trpcResponse[captionResult]
	status, err := c.postJSON(ctx, c.cfg.CaptionTimeout, c.cfg.LabsURL+"/fx/api/trpc/backbone.captionImage", req, &resp)
	if err != nil || status != 200 {
		c.logger.Debug("caption unavailable", zap.Int("status", status), zap.Error(err))
		return ""
	}
	if cands := resp.Result.Data.JSON.Result.Candidates; len(cands) > 0 {
		return cands[0].Output
	}
	return ""
}
