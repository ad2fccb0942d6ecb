package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/schema"
)

var libraryDir = filepath.Join("..", "..", "testdata", "library")

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
	}
	return dir
}

const minimalSchema = `package test

entity: Tag: {
	table:    "tags"
	identity: "id"
	attributes: {
		id:   "integer"
		name: "string"
	}
}
`

func TestLoadLibraryProject(t *testing.T) {
	p, err := Load(libraryDir)
	require.NoError(t, err)

	assert.Equal(t, 2, p.FileCount)
	author, ok := p.Schema.Entity("Author")
	require.True(t, ok)
	assert.Equal(t, "authors", author.Table)

	assert.Equal(t, "sqlite", p.Settings.Dialect)
	assert.Equal(t, 10, p.Settings.DefaultLimit)
	assert.Equal(t, 100, p.Settings.MaxLimit)
	assert.Equal(t, 200, p.Settings.MaxQueries)
	assert.Nil(t, p.Settings.Distinct)
}

func TestLoadWithoutEngineSection(t *testing.T) {
	dir := writeProject(t, map[string]string{"schema.cue": minimalSchema})

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Zero(t, p.Settings)
	assert.Len(t, p.Schema.Entities(), 1)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		code  string
	}{
		{
			name:  "no cue files",
			files: map[string]string{"README": "nothing"},
			code:  ErrCodeNoFiles,
		},
		{
			name:  "syntax error",
			files: map[string]string{"bad.cue": "package test\nentity: {"},
			code:  ErrCodeLoadFailed,
		},
		{
			name:  "conflicting values",
			files: map[string]string{"a.cue": "package test\nx: 1\n", "b.cue": "package test\nx: 2\n"},
			code:  ErrCodeBuildFailed,
		},
		{
			name:  "no entities",
			files: map[string]string{"a.cue": "package test\nengine: {}\n"},
			code:  ErrCodeSchema,
		},
		{
			name: "unknown dialect",
			files: map[string]string{
				"schema.cue": minimalSchema,
				"engine.cue": "package test\nengine: dialect: \"oracle\"\n",
			},
			code: ErrCodeSettings,
		},
		{
			name: "default above max",
			files: map[string]string{
				"schema.cue": minimalSchema,
				"engine.cue": "package test\nengine: {defaultLimit: 50, maxLimit: 10}\n",
			},
			code: ErrCodeSettings,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeProject(t, tt.files))
			require.Error(t, err)
			assert.Equal(t, tt.code, LoadErrorCode(err))
		})
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, ErrCodeNotFound, LoadErrorCode(err))
}

func TestLoadValidationErrorsAreReachable(t *testing.T) {
	dir := writeProject(t, map[string]string{"schema.cue": `package test

entity: Book: {
	table:    "books"
	identity: "id"
	attributes: {
		id:     "integer"
		author: {toOne: "Author", column: "author_id"}
	}
}
`})
	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, ErrCodeSchema, LoadErrorCode(err))

	var verrs schema.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestParseRequest(t *testing.T) {
	req, err := LoadRequestFile(filepath.Join(libraryDir, "requests", "novelists.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "Author", req.Entity)
	require.Len(t, req.Select, 3)
	assert.Equal(t, "books", req.Select[2].Field)
	assert.NotNil(t, req.Select[2].Where)
	assert.IsType(t, queryir.Relation{}, req.Where)

	_, err = ParseRequest([]byte(""))
	assert.Equal(t, ErrCodeRequest, LoadErrorCode(err))

	_, err = ParseRequest([]byte("entity: [unclosed"))
	assert.Equal(t, ErrCodeRequest, LoadErrorCode(err))

	_, err = ParseRequest([]byte("select: [id]"))
	require.Error(t, err)
	assert.True(t, queryir.IsCompileError(err))

	_, err = LoadRequestFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ErrCodeRequest, LoadErrorCode(err))
}
