package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jharjadi/tokenwise/internal/model"
)

var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".kt": true, ".rs": true, ".c": true, ".h": true, ".cc": true,
	".cpp": true, ".hpp": true, ".cs": true, ".rb": true, ".php": true, ".swift": true,
	".scala": true, ".sh": true, ".sql": true,
}

var docsExtensions = map[string]bool{
	".md": true, ".markdown": true, ".rst": true, ".txt": true, ".adoc": true,
}

// detectType infers a content type from the file extension.
func detectType(path string) model.ContentType {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case codeExtensions[ext]:
		return model.ContentCode
	case docsExtensions[ext]:
		return model.ContentDocs
	default:
		return model.ContentOther
	}
}

// expandInputs resolves paths, directories and doublestar patterns into a
// de-duplicated list of regular files in argument order.
func expandInputs(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		pattern := arg
		if info, err := os.Stat(arg); err == nil {
			if !info.IsDir() {
				add(arg)
				continue
			}
			pattern = filepath.Join(arg, "**", "*")
		} else if !strings.ContainsAny(arg, "*?[{") {
			return nil, fmt.Errorf("input not found: %s", arg)
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", arg, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			add(m)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	return out, nil
}

// loadItems reads every file into a content item keyed by its path.
func loadItems(paths []string) ([]model.ContentItem, error) {
	items := make([]model.ContentItem, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		modTime := info.ModTime().UTC()

		items = append(items, model.ContentItem{
			ID:        p,
			Text:      string(data),
			Type:      detectType(p),
			Timestamp: &modTime,
			Metadata: map[string]any{
				"path": p,
				"size": info.Size(),
			},
		})
	}
	return items, nil
}
