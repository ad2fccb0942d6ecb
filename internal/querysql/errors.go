package querysql

import "github.com/roach88/qgraph/internal/queryir"

// CompileError is the request error raised by the compilers.
// It is defined in queryir so decoding and compilation share codes.
type CompileError = queryir.CompileError

// IsCompileError reports whether err is or wraps a *CompileError.
func IsCompileError(err error) bool {
	return queryir.IsCompileError(err)
}

func compileErr(code, path, format string, args ...any) error {
	return queryir.NewCompileError(code, path, format, args...)
}
