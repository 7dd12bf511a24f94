package agent

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// PromptManager assembles the planner system prompt from markdown files. Files in Directory
// take precedence; the embedded defaults are used when the directory is unset or empty.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// promptOrder fixes the position of known prompt files. Unknown files follow by name.
var promptOrder = map[string]int{
	"identity.md": 1,
	"planner.md":  2,
	"datasets.md": 3,
	"examples.md": 4,
}

func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	if pm != nil && pm.Directory != "" {
		prompt, err := readPrompts(os.DirFS(pm.Directory))
		if err == nil {
			return prompt, nil
		}
		log.Printf("Warning: using built-in planner prompt: %v", err)
	}

	sub, err := fs.Sub(defaultPrompts, "prompts")
	if err != nil {
		return "", fmt.Errorf("failed to open built-in prompts: %w", err)
	}
	return readPrompts(sub)
}

func readPrompts(fsys fs.FS) (string, error) {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := promptOrder[files[i].Name()]
		oj, okJ := promptOrder[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		data, err := fs.ReadFile(fsys, f.Name())
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", f.Name(), err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found")
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}
