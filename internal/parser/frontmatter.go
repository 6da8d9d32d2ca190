package parser

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weftlabs/weft/internal/script"
)

// frontmatterPattern matches a leading "# ---" fenced comment block.
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*# ---[ \t]*\n(.*?)\n[ \t]*# ---[ \t]*(\n|$)`)

// FrontmatterResult holds the result of frontmatter extraction.
type FrontmatterResult struct {
	Meta  script.Meta
	Found bool
}

// ExtractFrontmatter reads the optional metadata block at the top of a
// script: YAML carried in comment lines between two "# ---" fences. The
// block is metadata only; it stays part of the source and therefore of the
// content hash.
func ExtractFrontmatter(content string) (*FrontmatterResult, error) {
	res := &FrontmatterResult{}
	m := frontmatterPattern.FindStringSubmatch(content)
	if m == nil {
		return res, nil
	}
	res.Found = true

	var yamlLines []string
	for _, line := range strings.Split(m[1], "\n") {
		stripped := strings.TrimLeft(line, " \t")
		if stripped == "" {
			yamlLines = append(yamlLines, "")
			continue
		}
		if !strings.HasPrefix(stripped, "#") {
			return nil, &FrontmatterParseError{
				Message: fmt.Sprintf("frontmatter line %q is not a comment", strings.TrimSpace(line)),
			}
		}
		// Drop the "# " prefix but keep deeper indentation so nested YAML
		// survives.
		content := strings.TrimPrefix(stripped, "#")
		yamlLines = append(yamlLines, strings.TrimPrefix(content, " "))
	}

	meta, err := parseFrontmatterYAML(strings.Join(yamlLines, "\n"))
	if err != nil {
		return nil, err
	}
	res.Meta = *meta
	return res, nil
}

// parseFrontmatterYAML parses YAML content with strict field validation.
func parseFrontmatterYAML(yamlContent string) (*script.Meta, error) {
	var rawMap map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &rawMap); err != nil {
		return nil, &FrontmatterParseError{
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}
	}

	knownFields := map[string]bool{
		"name":        true,
		"description": true,
		"owner":       true,
		"tags":        true,
	}
	for field := range rawMap {
		if !knownFields[field] {
			return nil, &UnknownFieldError{Field: field}
		}
	}

	var meta script.Meta
	if err := yaml.Unmarshal([]byte(yamlContent), &meta); err != nil {
		return nil, &FrontmatterParseError{
			Message: fmt.Sprintf("failed to parse frontmatter: %v", err),
		}
	}
	if meta.Name != "" {
		if err := script.ValidateName(meta.Name); err != nil {
			return nil, &FrontmatterParseError{Message: err.Error()}
		}
	}
	return &meta, nil
}

// FrontmatterParseError represents a frontmatter parsing error.
type FrontmatterParseError struct {
	File    string
	Line    int
	Message string
}

func (e *FrontmatterParseError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError represents an error for unknown frontmatter fields.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in frontmatter", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
