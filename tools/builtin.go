package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Calculator returns a four-function arithmetic tool. It exists mostly for
// agent smoke tests and examples.
func Calculator() Descriptor {
	return Descriptor{
		Name:        "calculator",
		Description: "Perform basic arithmetic on two numbers.",
		Params: map[string]Param{
			"operation": {Type: "string", Description: "One of add, subtract, multiply, divide.", Required: true},
			"a":         {Type: "number", Description: "Left operand.", Required: true},
			"b":         {Type: "number", Description: "Right operand.", Required: true},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			op, _ := args["operation"].(string)
			a, aok := toFloat(args["a"])
			b, bok := toFloat(args["b"])
			if !aok || !bok {
				return nil, fmt.Errorf("operands a and b must be numbers")
			}
			switch op {
			case "add":
				return a + b, nil
			case "subtract":
				return a - b, nil
			case "multiply":
				return a * b, nil
			case "divide":
				if b == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				return a / b, nil
			default:
				return nil, fmt.Errorf("unknown operation %q", op)
			}
		},
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FileTools exposes read, write and list operations confined to baseDir.
// Paths are resolved relative to baseDir and must not escape it.
type FileTools struct {
	baseDir string
}

// NewFileTools creates file tools rooted at baseDir. An empty baseDir uses
// the current working directory.
func NewFileTools(baseDir string) (*FileTools, error) {
	if baseDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		baseDir = cwd
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &FileTools{baseDir: abs}, nil
}

// RegisterAll adds every file tool to r.
func (f *FileTools) RegisterAll(r *Registry) error {
	for _, d := range []Descriptor{f.ReadFile(), f.WriteFile(), f.ListFiles()} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileTools) resolve(path string) (string, error) {
	resolved := filepath.Join(f.baseDir, filepath.Clean("/"+path))
	if resolved != f.baseDir && !strings.HasPrefix(resolved, f.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	return resolved, nil
}

// ReadFile returns the read_file tool descriptor.
func (f *FileTools) ReadFile() Descriptor {
	return Descriptor{
		Name:        "read_file",
		Description: "Read a text file relative to the agent working directory.",
		Params: map[string]Param{
			"path": {Type: "string", Description: "File path relative to the working directory.", Required: true},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			resolved, err := f.resolve(path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		},
	}
}

// WriteFile returns the write_file tool descriptor.
func (f *FileTools) WriteFile() Descriptor {
	return Descriptor{
		Name:        "write_file",
		Description: "Write content to a file relative to the agent working directory.",
		Params: map[string]Param{
			"path":    {Type: "string", Description: "File path relative to the working directory.", Required: true},
			"content": {Type: "string", Description: "Content to write.", Required: true},
			"append":  {Type: "boolean", Description: "Append instead of overwrite."},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			appendMode, _ := args["append"].(bool)

			resolved, err := f.resolve(path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return nil, err
			}

			flags := os.O_WRONLY | os.O_CREATE
			if appendMode {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			file, err := os.OpenFile(resolved, flags, 0o644)
			if err != nil {
				return nil, err
			}
			defer file.Close()
			if _, err := file.WriteString(content); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

// ListFiles returns the list_files tool descriptor.
func (f *FileTools) ListFiles() Descriptor {
	return Descriptor{
		Name:        "list_files",
		Description: "List files in a directory relative to the agent working directory.",
		Params: map[string]Param{
			"directory": {Type: "string", Description: "Directory relative to the working directory.", Required: true},
			"pattern":   {Type: "string", Description: "Optional glob pattern, defaults to *."},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			dir, _ := args["directory"].(string)
			pattern, _ := args["pattern"].(string)
			if pattern == "" {
				pattern = "*"
			}
			resolved, err := f.resolve(dir)
			if err != nil {
				return nil, err
			}
			matches, err := filepath.Glob(filepath.Join(resolved, pattern))
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(matches))
			for _, m := range matches {
				rel, err := filepath.Rel(f.baseDir, m)
				if err != nil {
					continue
				}
				names = append(names, rel)
			}
			return names, nil
		},
	}
}
