package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"
)

//go:embed resources/prompts
var embedded embed.FS

// LoadEmbedded registers the prompts compiled into the binary.
func LoadEmbedded(r *Registry) error {
	return loadPrompts(r, embedded, "resources/prompts")
}

// LoadFromDirectory overrides prompts from a directory structure:
//
//	baseDir/
//	  prompts/
//	    extraction/
//	      fund_portfolio.json
//
// A prompt with the same ID as an embedded one replaces it.
func LoadFromDirectory(r *Registry, baseDir string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(filepath.Join(baseDir, "prompts")); err != nil {
		return fmt.Errorf("prompts directory not found in %s: %w", baseDir, err)
	}
	before := r.Count()
	if err := loadPrompts(r, os.DirFS(baseDir), "prompts"); err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}
	logger.Info("Loaded prompts", zap.String("dir", baseDir),
		zap.Int("total", r.Count()), zap.Int("added", r.Count()-before))
	return nil
}

// loadPrompts walks root inside fsys and registers every .json file.
func loadPrompts(r *Registry, fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		var pt PromptTemplate
		if err := json.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}

		// Auto-generate ID from path if not specified
		if pt.ID == "" {
			pt.ID = generateIDFromPath(p, root)
		}
		if pt.Category == "" {
			pt.Category = detectCategory(p, root)
		}

		if err := r.Register(&pt); err != nil {
			return fmt.Errorf("failed to register %s: %w", pt.ID, err)
		}
		return nil
	})
}

// generateIDFromPath creates a prompt ID from the file path
// e.g., "prompts/extraction/fund_portfolio.json" -> "extraction.fund_portfolio"
func generateIDFromPath(p, root string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
	rel = strings.TrimSuffix(rel, ".json")
	return strings.ReplaceAll(rel, "/", ".")
}

// detectCategory extracts the category from the folder structure
func detectCategory(p, root string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
	parts := strings.Split(rel, "/")
	if len(parts) > 1 {
		return parts[0]
	}
	return "default"
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// RenderUserPrompt executes the user prompt template with the given context
func RenderUserPrompt(pt *PromptTemplate, ctx *PromptExecutionContext) (string, error) {
	if pt.UserPromptTmpl == "" {
		return "", nil
	}
	if missing := ctx.Missing(pt); len(missing) > 0 {
		return "", fmt.Errorf("prompt %s: missing variables %s", pt.ID, strings.Join(missing, ", "))
	}

	tmpl, err := template.New(pt.ID).Funcs(templateFuncs).Option("missingkey=error").Parse(pt.UserPromptTmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx.Variables); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
