// Package llm proxies provider questions to the chat-completion backend
// configured on each provider row.
package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	AuthKeyHeader = "key"
	AuthBearer    = "bearer"
)

const defaultSystemPrompt = "You are a helpful medical assistant for Dr.{{.Name}}, who specializes in {{.Specialty}}.\n" +
	" Always respond as the utmost professional, polite, and {{.Specialty}} with the goal of helping clients," +
	" and assisting clients answer their questions and guiding them to get information they need."

// Backend describes one chat-completion API.
type Backend struct {
	Endpoint     string            `yaml:"endpoint" json:"endpoint"`
	Auth         string            `yaml:"auth" json:"auth"`
	Model        string            `yaml:"model,omitempty" json:"model,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	SystemPrompt string            `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// Catalog maps the provider row's LLM selector onto a backend.
type Catalog struct {
	Backends map[string]Backend `yaml:"backends" json:"backends"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalog{}, fmt.Errorf("read llm catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse llm catalog: %w", err)
	}
	if len(cat.Backends) == 0 {
		return Catalog{}, fmt.Errorf("llm catalog empty")
	}
	for name, b := range cat.Backends {
		if err := b.validate(); err != nil {
			return Catalog{}, fmt.Errorf("llm backend %q: %w", name, err)
		}
	}
	return cat, nil
}

// Lookup matches the selector exactly first, then case-insensitively.
func (c Catalog) Lookup(name string) (Backend, bool) {
	if b, ok := c.Backends[name]; ok {
		return b, true
	}
	for k, b := range c.Backends {
		if strings.EqualFold(k, name) {
			return b, true
		}
	}
	return Backend{}, false
}

func DefaultCatalog() Catalog {
	return Catalog{Backends: map[string]Backend{
		"BastionGPT": {
			Endpoint: "https://api.bastiongpt.com/v1/ChatCompletion",
			Auth:     AuthKeyHeader,
			Headers:  map[string]string{"Function": "general"},
		},
		"OpenAI": {
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Auth:     AuthBearer,
			Model:    "gpt-4",
		},
	}}
}

func (b Backend) validate() error {
	if b.Endpoint == "" {
		return fmt.Errorf("endpoint required")
	}
	switch b.Auth {
	case AuthKeyHeader, AuthBearer:
	default:
		return fmt.Errorf("unknown auth %q", b.Auth)
	}
	if b.SystemPrompt != "" {
		if _, err := template.New("system").Parse(b.SystemPrompt); err != nil {
			return err
		}
	}
	return nil
}

func (b Backend) systemPrompt(name, specialty string) (string, error) {
	text := b.SystemPrompt
	if text == "" {
		text = defaultSystemPrompt
	}
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	err = tmpl.Execute(&sb, struct{ Name, Specialty string }{name, specialty})
	return sb.String(), err
}
