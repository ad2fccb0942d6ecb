// Package config loads qgraph projects: a directory of CUE files declaring
// the entity model and the engine settings, plus YAML request files.
//
// A project directory looks like:
//
//	entity: Author: {
//		table: "authors"
//		identity: "id"
//		attributes: {...}
//	}
//	embeddable: Address: {...}
//	engine: {
//		dialect:      "sqlite"
//		defaultLimit: 25
//		maxLimit:     500
//		distinct:     true
//		concurrency:  1
//		maxQueries:   1000
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/qgraph/internal/engine"
	"github.com/roach88/qgraph/internal/querysql"
	"github.com/roach88/qgraph/internal/schema"
)

// Error codes shared by every CLI command.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeRequest     = "E007" // Request file unreadable or malformed
	ErrCodeDatabase    = "E008" // Database unreachable or migration failed
	ErrCodeFixtures    = "E009" // Fixture file unreadable or rejected

	// Model errors
	ErrCodeSchema   = "E101" // Entity or embeddable declaration invalid
	ErrCodeSettings = "E102" // Engine section invalid
)

// Project is a loaded project directory.
type Project struct {
	Dir       string
	Schema    *schema.Schema
	Settings  engine.Settings
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during project loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error     // underlying error, if any
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadErrorCode returns the code of a wrapped *LoadError, or "".
func LoadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// Load reads every CUE file of dir and compiles the entity model and the
// engine section.
func Load(dir string) (*Project, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("project directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing project directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	s, err := schema.Compile(value)
	if err != nil {
		return nil, convertSchemaError(err)
	}
	settings, err := decodeSettings(value)
	if err != nil {
		return nil, err
	}

	return &Project{
		Dir:       dir,
		Schema:    s,
		Settings:  settings,
		CUEValue:  value,
		FileCount: len(cueFiles),
	}, nil
}

// decodeSettings reads the optional engine section. The dialect name is
// checked here so a bad project fails at load time.
func decodeSettings(v cue.Value) (engine.Settings, error) {
	var s engine.Settings
	ev := v.LookupPath(cue.ParsePath("engine"))
	if !ev.Exists() {
		return s, nil
	}
	if err := ev.Decode(&s); err != nil {
		return s, &LoadError{Code: ErrCodeSettings, Message: fmt.Sprintf("engine: %v", err), Pos: ev.Pos()}
	}
	if _, err := querysql.DialectByName(s.Dialect); err != nil {
		return s, &LoadError{Code: ErrCodeSettings, Message: fmt.Sprintf("engine: %v", err), Pos: ev.Pos()}
	}
	if s.DefaultLimit < 0 || s.MaxLimit < 0 {
		return s, &LoadError{Code: ErrCodeSettings, Message: "engine: limits must not be negative", Pos: ev.Pos()}
	}
	if s.MaxLimit > 0 && s.DefaultLimit > s.MaxLimit {
		return s, &LoadError{
			Code:    ErrCodeSettings,
			Message: fmt.Sprintf("engine: defaultLimit %d exceeds maxLimit %d", s.DefaultLimit, s.MaxLimit),
			Pos:     ev.Pos(),
		}
	}
	return s, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertSchemaError converts a schema error to a LoadError with position info.
func convertSchemaError(err error) *LoadError {
	var ce *schema.CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    ErrCodeSchema,
			Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message),
			Pos:     ce.Pos,
			Err:     err,
		}
	}
	return &LoadError{Code: ErrCodeSchema, Message: err.Error(), Err: err}
}
