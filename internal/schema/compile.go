package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Compile builds a registry from a CUE value holding a top-level
// "collection" struct. A value without collections yields an empty registry.
func Compile(v cue.Value, opts ...Option) (*Registry, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	r := NewRegistry(opts...)

	collections := v.LookupPath(cue.ParsePath("collection"))
	if !collections.Exists() {
		return r, nil
	}

	iter, err := collections.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		fields, err := compileCollection(iter.Value())
		if err != nil {
			return nil, err
		}
		if err := r.Register(name, fields...); err != nil {
			return nil, &CompileError{Field: "collection." + name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
	}
	return r, nil
}

func compileCollection(v cue.Value) ([]string, error) {
	pkVal := v.LookupPath(cue.ParsePath("pk"))
	if !pkVal.Exists() {
		return []string{DefaultPKField}, nil
	}

	switch pkVal.IncompleteKind() {
	case cue.StringKind:
		s, err := pkVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return []string{s}, nil
	case cue.ListKind:
		iter, err := pkVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var fields []string
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   "pk",
					Message: "pk list elements must be strings",
					Pos:     iter.Value().Pos(),
				}
			}
			fields = append(fields, s)
		}
		if len(fields) == 0 {
			return nil, &CompileError{Field: "pk", Message: "pk list must not be empty", Pos: pkVal.Pos()}
		}
		return fields, nil
	default:
		return nil, &CompileError{
			Field:   "pk",
			Message: "pk must be a string or a list of strings",
			Pos:     pkVal.Pos(),
		}
	}
}

// CompileString compiles CUE source text into a registry. filename is used
// for error positions.
func CompileString(src, filename string, opts ...Option) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v, opts...)
}

// LoadDir loads every CUE file of the package in dir and compiles the result.
func LoadDir(dir string, opts ...Option) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load schema: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load schema: no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load schema: %w", formatCUEError(inst.Err))
	}

	ctx := cuecontext.New()
	return Compile(ctx.BuildInstance(inst), opts...)
}

// Load compiles a schema from path, which may be a CUE file or a directory.
func Load(path string, opts ...Option) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path, opts...)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return CompileString(string(src), path, opts...)
}
