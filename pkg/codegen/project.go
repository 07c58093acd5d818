// Package codegen manages the output file tree for generated testbench code.
package codegen

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Sink accepts finished artifact content and writes it out at the end of a
// run.
type Sink interface {
	RegisterFile(path, content string)
	FlushAll() ([]string, error)
}

// Project collects generated files in memory and flushes them under a single
// output directory.
type Project struct {
	mu        sync.Mutex
	outputDir string
	files     map[string]string // relative path -> content
	order     []string          // registration order
}

// NewProject creates a project rooted at outputDir.
func NewProject(outputDir string) *Project {
	return &Project{
		outputDir: outputDir,
		files:     make(map[string]string),
	}
}

// RegisterFile records a file to be written. Registering a path twice
// replaces its content.
func (p *Project) RegisterFile(path, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.files[path]; !exists {
		p.order = append(p.order, path)
	}
	p.files[path] = content
	log.Printf("registered file: %s", path)
}

// Files returns a copy of the registered path -> content map.
func (p *Project) Files() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]string, len(p.files))
	for k, v := range p.files {
		out[k] = v
	}
	return out
}

// FlushAll writes every registered file to disk and returns the written
// paths in registration order.
func (p *Project) FlushAll() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	written := make([]string, 0, len(p.order))
	for _, rel := range p.order {
		full := filepath.Join(p.outputDir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return written, fmt.Errorf("failed to create %s: %w", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(p.files[rel]), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", full, err)
		}
		written = append(written, full)
	}
	return written, nil
}

// GenerateFilelist registers a filelist.f ordering files for compilation:
// packages first, then interfaces, then components, then tops.
func (p *Project) GenerateFilelist() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pkgs, intfs, tops, others []string
	for rel := range p.files {
		lower := strings.ToLower(rel)
		switch {
		case strings.HasSuffix(rel, "_pkg.sv"):
			pkgs = append(pkgs, rel)
		case strings.Contains(rel, "_if.") || strings.Contains(lower, "interface"):
			intfs = append(intfs, rel)
		case strings.Contains(lower, "top"):
			tops = append(tops, rel)
		default:
			others = append(others, rel)
		}
	}

	lines := []string{
		"// Auto-generated filelist",
		"// Compile order matters: packages first, then components",
		"",
	}
	for _, group := range [][]string{pkgs, intfs, others, tops} {
		sort.Strings(group)
		lines = append(lines, group...)
	}
	content := strings.Join(lines, "\n") + "\n"

	if _, exists := p.files["filelist.f"]; !exists {
		p.order = append(p.order, "filelist.f")
	}
	p.files["filelist.f"] = content
	return content
}
