package analyzer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/shelf/errors"
)

// Category is one classification target: the keywords that vote for it and
// the groups it suggests, best first.
type Category struct {
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords" toml:"keywords"`
	Groups   []string `json:"groups,omitempty" yaml:"groups,omitempty" toml:"groups,omitempty"`
}

// Group returns the preferred group for the category.
func (c Category) Group() string {
	if len(c.Groups) > 0 {
		return c.Groups[0]
	}
	return c.Name
}

// Taxonomy is the ordered category list. Order breaks score ties.
type Taxonomy struct {
	Categories []Category `json:"categories" yaml:"categories" toml:"categories"`
}

// DefaultTaxonomy returns the built-in taxonomy.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{Categories: []Category{
		{
			Name:     "ai-tools",
			Keywords: []string{"ai", "chatgpt", "gpt", "llm", "openai", "claude", "machine learning", "人工智能", "大模型"},
			Groups:   []string{"AI Tools", "AI"},
		},
		{
			Name:     "developer-tools",
			Keywords: []string{"dev", "developer", "editor", "ide", "compiler", "debugger", "toolkit", "开发", "工具"},
			Groups:   []string{"Developer Tools", "Toolbox"},
		},
		{
			Name:     "ui-design",
			Keywords: []string{"ui", "ux", "design", "icons", "icon", "figma", "illustration", "components", "设计", "图标"},
			Groups:   []string{"UI Design", "Design Resources"},
		},
		{
			Name:     "frontend",
			Keywords: []string{"frontend", "react", "vue", "svelte", "javascript", "typescript", "js", "css", "前端"},
			Groups:   []string{"Frontend", "Web Development"},
		},
		{
			Name:     "backend",
			Keywords: []string{"backend", "server", "api", "database", "sql", "postgres", "golang", "后端", "数据库"},
			Groups:   []string{"Backend", "Databases"},
		},
		{
			Name:     "mobile",
			Keywords: []string{"mobile", "android", "ios", "flutter", "swift", "kotlin", "react native", "移动"},
			Groups:   []string{"Mobile", "App Development"},
		},
		{
			Name:     "open-source",
			Keywords: []string{"github", "gitlab", "open source", "repository", "repo", "开源", "仓库"},
			Groups:   []string{"Open Source", "Projects"},
		},
		{
			Name:     "blogs-tutorials",
			Keywords: []string{"blog", "tutorial", "guide", "article", "course", "learn", "博客", "教程"},
			Groups:   []string{"Learning", "Blogs"},
		},
		{
			Name:     "documentation",
			Keywords: []string{"docs", "documentation", "reference", "manual", "handbook", "文档", "手册"},
			Groups:   []string{"Documentation", "API Docs"},
		},
		{
			Name:     "cloud",
			Keywords: []string{"cloud", "aws", "azure", "gcp", "kubernetes", "docker", "serverless", "云"},
			Groups:   []string{"Cloud", "Infrastructure"},
		},
		{
			Name:     "storage-nas",
			Keywords: []string{"nas", "synology", "storage", "backup", "raid", "存储", "群晖"},
			Groups:   []string{"Storage", "NAS"},
		},
		{
			Name:     "command-line",
			Keywords: []string{"cli", "terminal", "shell", "bash", "git", "linux", "command line", "命令", "终端"},
			Groups:   []string{"Command Line", "Terminal Tools"},
		},
	}}
}

// Validate checks that every category has a unique name and at least one
// non-blank keyword.
func (t Taxonomy) Validate() error {
	if len(t.Categories) == 0 {
		return errors.NewInvalidConfigError("taxonomy has no categories")
	}
	seen := make(map[string]bool, len(t.Categories))
	for i, c := range t.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return errors.NewInvalidConfigError("taxonomy category %d has no name", i)
		}
		if seen[name] {
			return errors.NewInvalidConfigError("taxonomy category %q is defined twice", name)
		}
		seen[name] = true

		usable := 0
		for _, kw := range c.Keywords {
			if normalizeKeyword(kw) != "" {
				usable++
			}
		}
		if usable == 0 {
			return errors.NewInvalidConfigError("taxonomy category %q has no keywords", name)
		}
	}
	return nil
}

// Has reports whether name is one of the taxonomy's categories.
func (t Taxonomy) Has(name string) bool {
	for _, c := range t.Categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// LoadTaxonomy reads a taxonomy file. The format follows the extension:
// .yaml/.yml, .toml or .json.
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, errors.Wrapf(err, "read taxonomy %s", path)
	}
	t, err := DecodeTaxonomy(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return Taxonomy{}, errors.Wrapf(err, "load taxonomy %s", path)
	}
	return t, nil
}

// DecodeTaxonomy decodes and validates a taxonomy document in the given
// format ("yaml", "yml", "toml" or "json").
func DecodeTaxonomy(data []byte, format string) (Taxonomy, error) {
	var t Taxonomy
	switch format {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return Taxonomy{}, errors.NewInvalidConfigError("decode yaml taxonomy: %v", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &t)
		if err != nil {
			return Taxonomy{}, errors.NewInvalidConfigError("decode toml taxonomy: %v", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Taxonomy{}, errors.NewInvalidConfigError("unknown taxonomy keys: %v", undecoded)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return Taxonomy{}, errors.NewInvalidConfigError("decode json taxonomy: %v", err)
		}
	default:
		return Taxonomy{}, errors.NewInvalidConfigError("unsupported taxonomy format %q", format)
	}

	if err := t.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return t, nil
}

// taxonomyFromOption accepts the shapes a "taxonomy" option arrives in:
// a Taxonomy, a category slice, or decoded JSON/TOML (maps and slices).
func taxonomyFromOption(raw any) (Taxonomy, error) {
	switch v := raw.(type) {
	case Taxonomy:
		return v, v.Validate()
	case *Taxonomy:
		if v == nil {
			return Taxonomy{}, errors.NewInvalidConfigError("taxonomy is nil")
		}
		return *v, v.Validate()
	case []Category:
		t := Taxonomy{Categories: v}
		return t, t.Validate()
	}

	// Generic decoded data: round-trip through JSON into the typed form.
	data, err := json.Marshal(raw)
	if err != nil {
		return Taxonomy{}, errors.NewInvalidConfigError("taxonomy has unsupported type %T", raw)
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		data = append(append([]byte(`{"categories":`), data...), '}')
	}
	return DecodeTaxonomy(data, "json")
}
