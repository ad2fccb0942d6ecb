package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qgraph/internal/queryir"
)

// ParseRequest decodes the YAML (or JSON) object form of a request.
//
//	entity: Author
//	select: [id, name, {books: [title]}]
//	where: {books: {genre: NOVEL}}
//	page: {start: 1, limit: 10}
func ParseRequest(data []byte) (*queryir.Request, error) {
	var obj map[string]any
	if err := yaml.Unmarshal(data, &obj); err != nil {
		return nil, &LoadError{Code: ErrCodeRequest, Message: fmt.Sprintf("parsing request: %v", err), Err: err}
	}
	if obj == nil {
		return nil, &LoadError{Code: ErrCodeRequest, Message: "request is empty"}
	}
	req, err := queryir.DecodeRequest(obj)
	if err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return req, nil
}

// LoadRequestFile reads and decodes a request file.
func LoadRequestFile(path string) (*queryir.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRequest, Message: fmt.Sprintf("reading request: %v", err), Err: err}
	}
	return ParseRequest(data)
}
