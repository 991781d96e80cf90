// Package imagegen provides the OpenAI-backed generation backend and the
// on-disk FileSink.
//
// atoms.go contains pure helpers with no dependencies beyond the domain types.
package imagegen

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"

	"batchgen/reference"
)

// Image sizes accepted by dall-e-3, keyed by the aspect ratio enum.
var sizesByAspect = map[string]string{
	"IMAGE_ASPECT_RATIO_LANDSCAPE": "1792x1024",
	"IMAGE_ASPECT_RATIO_PORTRAIT":  "1024x1792",
	"IMAGE_ASPECT_RATIO_SQUARE":    "1024x1024",
}

// SizeFor maps an aspect ratio enum to an OpenAI image size, falling back
// to fallback for unknown or empty ratios.
//
// Example:
//
//	SizeFor("IMAGE_ASPECT_RATIO_PORTRAIT", "1024x1024") // "1024x1792"
//	SizeFor("", "512x512")                             // "512x512"
func SizeFor(aspectRatio, fallback string) string {
	if size, ok := sizesByAspect[aspectRatio]; ok {
		return size
	}
	return fallback
}

// ConditionedPrompt folds reference captions into the prompt, since the
// Images API takes no reference media. References without a caption add
// nothing.
//
// Example:
//
//	ConditionedPrompt("Ahmet fishing", refs)
//	// "Ahmet fishing\nsubject: an old man with a beard\nstyle: watercolor"
func ConditionedPrompt(prompt string, refs []reference.ResolvedReference) string {
	var b strings.Builder
	b.WriteString(prompt)
	for _, r := range refs {
		caption := strings.TrimSpace(r.Caption)
		if caption == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(r.Category.String())
		b.WriteString(": ")
		b.WriteString(caption)
	}
	return b.String()
}

// DetectFormat sniffs the image payload and returns the file extension
// without the dot: "jpg", "png", "webp" or "gif". Anything unrecognized
// is reported as "jpg", which is what the remote service returns.
func DetectFormat(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "jpg"
	}
	switch format {
	case "png", "webp", "gif":
		return format
	default:
		return "jpg"
	}
}

// sanitizeFilename removes or replaces characters that are unsafe for filenames.
func sanitizeFilename(filename string) string {
	unsafe := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\n", "\r", "\t"}
	result := filename
	for _, char := range unsafe {
		result = strings.ReplaceAll(result, char, "_")
	}

	if len(result) > 200 {
		result = result[:200]
	}

	if result == "" {
		result = "image"
	}

	return result
}
