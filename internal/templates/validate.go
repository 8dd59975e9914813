package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RequiredFiles must exist in every theme.
var RequiredFiles = []string{
	"layout/theme.liquid",
	"templates/index.json",
	"config/settings_schema.json",
}

// Problem is one validation finding.
type Problem struct {
	Path    string
	Message string
}

func (p Problem) String() string {
	return p.Path + ": " + p.Message
}

// Report is the outcome of validating a theme.
type Report struct {
	StoreID  string
	Files    []string
	Problems []Problem
}

// OK reports whether the theme has no problems.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// ErrListingUnsupported is returned when the object store cannot enumerate
// keys.
var ErrListingUnsupported = errors.New("object store does not support listing")

// lister enumerates object keys under a prefix.
type lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// ValidateTheme checks that a store theme has the required files and that
// every Liquid source compiles and every JSON file parses.
func (l *Loader) ValidateTheme(ctx context.Context, storeID string) (*Report, error) {
	ls, ok := l.store.(lister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	if _, ok := l.themeKey(storeID, "layout/theme.liquid"); !ok {
		return nil, ErrUnsafePath
	}
	root := l.ObjectKey(storeID, "")
	keys, err := ls.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list theme files: %w", err)
	}

	report := &Report{StoreID: storeID}
	present := make(map[string]bool, len(keys))
	for _, key := range keys {
		file := strings.TrimPrefix(strings.TrimPrefix(key, root), "/")
		present[file] = true
		report.Files = append(report.Files, file)
	}
	sort.Strings(report.Files)

	for _, req := range RequiredFiles {
		if !present[req] {
			report.Problems = append(report.Problems, Problem{Path: req, Message: "required file is missing"})
		}
	}

	for _, file := range report.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if msg := l.checkFile(ctx, storeID, file); msg != "" {
			report.Problems = append(report.Problems, Problem{Path: file, Message: msg})
		}
	}
	return report, nil
}

func (l *Loader) checkFile(ctx context.Context, storeID, file string) string {
	isLiquid := strings.HasSuffix(file, ".liquid")
	isJSON := strings.HasSuffix(file, ".json")
	if !isLiquid && !isJSON {
		return ""
	}

	key, ok := l.themeKey(storeID, file)
	if !ok {
		return ErrUnsafePath.Error()
	}
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return err.Error()
	}

	switch {
	case isLiquid && strings.HasPrefix(file, "sections/"):
		_, body, err := ExtractSchema(string(data))
		if err != nil {
			return err.Error()
		}
		if _, err := l.engine.Compile(file, body); err != nil {
			return err.Error()
		}
	case isLiquid:
		if _, err := l.engine.Compile(file, string(data)); err != nil {
			return err.Error()
		}
	case strings.HasPrefix(file, "templates/") || strings.HasPrefix(file, "sections/"):
		if _, err := ParseDescriptor(data); err != nil {
			return err.Error()
		}
	default:
		var v any
		if err := UnmarshalTolerant(data, &v); err != nil {
			return err.Error()
		}
	}
	return ""
}
