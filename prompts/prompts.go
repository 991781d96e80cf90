// Package prompts loads the prompt list for a run from a text, YAML or PDF
// file. Every format reduces to the trimmed, non-blank lines of its text.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyPath is returned when an empty file path is provided.
	ErrEmptyPath = errors.New("prompts: empty path provided")

	// ErrNoPrompts is returned when a file yields no prompt.
	ErrNoPrompts = errors.New("prompts: no prompts found")

	// ErrUnsupportedFormat is returned for extensions Load does not know.
	ErrUnsupportedFormat = errors.New("prompts: unsupported file format")
)

// Load reads prompts from path. The format follows the extension:
// .txt (or none), .yaml/.yml, .pdf.
//
// Example:
//
//	list, err := prompts.Load("prompts.txt")
//	if err != nil {
//	    return err
//	}
func Load(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	var (
		list []string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case "", ".txt", ".text":
		var data []byte
		data, err = os.ReadFile(path)
		list = Parse(string(data))
	case ".yaml", ".yml":
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			list, err = ParseYAML(data)
		}
	case ".pdf":
		var text string
		text, err = ExtractPDFText(path)
		list = Parse(text)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("prompts: load %s: %w", path, err)
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoPrompts, path)
	}
	return list, nil
}

// Parse returns the trimmed non-blank lines of text, in order.
func Parse(text string) []string {
	var list []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			list = append(list, line)
		}
	}
	return list
}

// ParseYAML accepts either a top-level list of strings or a mapping with a
// "prompts" list. Entries are trimmed and blank entries dropped.
func ParseYAML(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var raw []string
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode prompt list: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Prompts []string `yaml:"prompts"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode prompts mapping: %w", err)
		}
		raw = wrapped.Prompts
	default:
		return nil, fmt.Errorf("expected a list or a prompts mapping")
	}

	list := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list, nil
}

// ExtractPDFText returns the plain text of every page, pages separated by
// a newline. Pages that fail to extract are skipped.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	var (
		b      strings.Builder
		failed int
	)
	total := r.NumPage()
	// pages are 1-indexed in ledongthuc/pdf
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			failed++
			continue
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}

	if b.Len() == 0 && failed > 0 {
		return "", fmt.Errorf("no page of %d could be read", total)
	}
	return b.String(), nil
}
