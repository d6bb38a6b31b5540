// Package loader reads rule files and compiles them into the rule sets the
// engines run.
//
// A rule file is YAML with up to five sections:
//
//	include:   [other.yaml]
//	variables: {me: "3f0c...", limit: -50}
//	tags:      [{tag: food, when: 'o => o.description.Contains("LIDL")'}]
//	transfers: [{accuracy: Exact, comment: own, when: '(a, b) => ...'}]
//	logbook:   {name: all, children: [...]}
//
// The loader supports two modes of operation:
//   - Simple mode: parses a single file; include entries are kept but not read
//   - Follow mode: recursively loads included files and merges them into one
//
// When following includes, relative paths are resolved from the directory of
// the including file, and every file is read at most once.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/budgetlog/logbook/logbook"
)

// TagRule is the declarative form of a tagging rule.
type TagRule struct {
	Tag     string `mapstructure:"tag"`
	TagFrom string `mapstructure:"tag_from"`
	When    string `mapstructure:"when"`

	file string
}

// TransferRule is the declarative form of a transfer criterion.
type TransferRule struct {
	Accuracy string `mapstructure:"accuracy"`
	Comment  string `mapstructure:"comment"`
	When     string `mapstructure:"when"`

	file string
}

// File is a parsed rule file, possibly merged with its includes.
type File struct {
	Include   []string            `mapstructure:"include"`
	Variables map[string]any      `mapstructure:"variables"`
	Tags      []TagRule           `mapstructure:"tags"`
	Transfers []TransferRule      `mapstructure:"transfers"`
	Logbook   *logbook.Definition `mapstructure:"logbook"`

	// Root is the absolute path of the file loaded first.
	Root string `mapstructure:"-"`
	// Files lists every file read, in load order.
	Files []string `mapstructure:"-"`

	logbookFile string
}

// Loader handles loading of rule files with optional include resolution.
//
// Configure the loader using functional options passed to New:
//
//	loader := New(WithFollowIncludes())
type Loader struct {
	// FollowIncludes determines whether to recursively load included files.
	FollowIncludes bool
}

// Option configures how files are loaded.
type Option func(*Loader)

// WithFollowIncludes configures the loader to recursively load and merge
// all included files. Variables of the including file take precedence;
// tag and transfer rules of the including file come first.
func WithFollowIncludes() Option {
	return func(l *Loader) {
		l.FollowIncludes = true
	}
}

// New creates a new Loader with the given options.
func New(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads filename and, in follow mode, everything it includes.
func (l *Loader) Load(ctx context.Context, filename string) (*File, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", filename, err)
	}
	if !l.FollowIncludes {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filename, err)
		}
		return parseFile(absPath, data)
	}

	state := &loaderState{visited: make(map[string]bool)}
	f, err := state.loadRecursive(ctx, absPath, nil)
	if err != nil {
		return nil, err
	}
	f.Root = absPath
	return f, nil
}

// LoadBytes parses data as the contents of filename. Includes are resolved
// relative to filename in follow mode.
func (l *Loader) LoadBytes(ctx context.Context, filename string, data []byte) (*File, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		absPath = filename
	}
	if !l.FollowIncludes {
		return parseFile(absPath, data)
	}
	state := &loaderState{visited: make(map[string]bool)}
	f, err := state.loadRecursive(ctx, absPath, data)
	if err != nil {
		return nil, err
	}
	f.Root = absPath
	return f, nil
}

// parseFile decodes one rule file. The format follows the extension and
// defaults to YAML.
func parseFile(path string, data []byte) (*File, error) {
	v := viper.New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		v.SetConfigType("toml")
	case ".json":
		v.SetConfigType("json")
	default:
		v.SetConfigType("yaml")
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	for i := range f.Tags {
		f.Tags[i].file = path
	}
	for i := range f.Transfers {
		f.Transfers[i].file = path
	}
	if f.Logbook != nil {
		f.logbookFile = path
	}
	f.Root = path
	f.Files = []string{path}
	return &f, nil
}

// loaderState tracks state during recursive loading.
type loaderState struct {
	visited map[string]bool // Absolute paths of files already loaded
}

// loadRecursive loads absPath, using data when given, and merges its
// includes into it.
func (l *loaderState) loadRecursive(ctx context.Context, absPath string, data []byte) (*File, error) {
	if l.visited[absPath] {
		return &File{}, nil
	}
	l.visited[absPath] = true

	if data == nil {
		var err error
		if data, err = os.ReadFile(absPath); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", absPath, err)
		}
	}
	f, err := parseFile(absPath, data)
	if err != nil {
		return nil, err
	}
	if len(f.Include) == 0 {
		return f, nil
	}

	baseDir := filepath.Dir(absPath)
	included := make([]*File, 0, len(f.Include))
	for _, inc := range f.Include {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		includePath := inc
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(baseDir, includePath)
		}
		child, err := l.loadRecursive(ctx, filepath.Clean(includePath), nil)
		if err != nil {
			return nil, fmt.Errorf("in file %s: %w", absPath, err)
		}
		included = append(included, child)
	}
	return merge(f, included...), nil
}

// merge combines a main file with the files it includes.
func merge(main *File, included ...*File) *File {
	result := &File{
		Variables:   make(map[string]any),
		Tags:        append([]TagRule(nil), main.Tags...),
		Transfers:   append([]TransferRule(nil), main.Transfers...),
		Logbook:     main.Logbook,
		logbookFile: main.logbookFile,
		Root:        main.Root,
		Files:       append([]string(nil), main.Files...),
	}
	for _, inc := range included {
		for name, v := range inc.Variables {
			result.Variables[name] = v
		}
		result.Tags = append(result.Tags, inc.Tags...)
		result.Transfers = append(result.Transfers, inc.Transfers...)
		if result.Logbook == nil && inc.Logbook != nil {
			result.Logbook = inc.Logbook
			result.logbookFile = inc.logbookFile
		}
		result.Files = append(result.Files, inc.Files...)
	}
	// Main file variables take precedence
	for name, v := range main.Variables {
		result.Variables[name] = v
	}
	return result
}
