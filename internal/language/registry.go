package language

import (
	"sort"
	"sync"

	appErr "judgecore/pkg/errors"
)

// Registry holds the set of judgeable languages. Built-in defaults can be
// overridden or extended from configuration before the service starts
// accepting submissions.
type Registry struct {
	mu        sync.RWMutex
	languages map[string]Spec
}

// NewRegistry creates a registry pre-populated with the built-in languages.
func NewRegistry() *Registry {
	r := &Registry{languages: make(map[string]Spec)}
	r.registerDefaults()
	return r
}

// Register adds or replaces a language spec.
func (r *Registry) Register(spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[spec.ID] = spec
	return nil
}

// ApplyConfig merges configured languages over the built-in defaults.
// A configured spec with a known ID replaces the default entirely.
func (r *Registry) ApplyConfig(specs []Spec) error {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return appErr.Wrapf(err, appErr.ValidationFailed, "invalid language config %q", spec.ID)
		}
	}
	return nil
}

// Resolve returns the spec for a language id.
func (r *Registry) Resolve(id string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.languages[id]
	if !ok {
		return Spec{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", id)
	}
	return spec, nil
}

// List returns all registered specs ordered by id.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.languages))
	for _, spec := range r.languages {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

func (r *Registry) registerDefaults() {
	defaults := []Spec{
		{
			ID:            "cpp17",
			Name:          "C++ 17 (GCC 13)",
			Image:         "gcc:13",
			SourceFile:    "main.cpp",
			BinaryFile:    "main",
			CompileCmdTpl: "g++ -O2 -std=c++17 -o {bin} {src}",
			RunCmdTpl:     "{bin}",
		},
		{
			ID:            "c17",
			Name:          "C 17 (GCC 13)",
			Image:         "gcc:13",
			SourceFile:    "main.c",
			BinaryFile:    "main",
			CompileCmdTpl: "gcc -O2 -std=c17 -o {bin} {src} -lm",
			RunCmdTpl:     "{bin}",
		},
		{
			ID:               "python3",
			Name:             "Python 3.11",
			Image:            "python:3.11-slim",
			SourceFile:       "main.py",
			RunCmdTpl:        "python3 {src}",
			TimeMultiplier:   3,
			MemoryMultiplier: 2,
		},
		{
			ID:               "javascript",
			Name:             "Node.js 20",
			Image:            "node:20-slim",
			SourceFile:       "main.js",
			RunCmdTpl:        "node {src}",
			TimeMultiplier:   3,
			MemoryMultiplier: 2,
		},
		{
			ID:               "java17",
			Name:             "Java 17",
			Image:            "eclipse-temurin:17-jdk",
			SourceFile:       "Main.java",
			BinaryFile:       "Main.class",
			CompileCmdTpl:    "javac {src}",
			RunCmdTpl:        "java -XX:+UseSerialGC Main",
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID:            "go",
			Name:          "Go 1.22",
			Image:         "golang:1.22",
			SourceFile:    "main.go",
			BinaryFile:    "main",
			CompileCmdTpl: "go build -o {bin} {src}",
			RunCmdTpl:     "{bin}",
			Env:           []string{"GOCACHE=/tmp/gocache", "GOPATH=/tmp/go", "GOFLAGS=-mod=mod", "HOME=/tmp"},
		},
	}
	for _, spec := range defaults {
		r.languages[spec.ID] = spec
	}
}
