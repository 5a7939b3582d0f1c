package config

import (
	stderrors "errors"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

var lineRe = regexp.MustCompile(`line (\d+)`)

// Load reads a pipeline definition from disk, validates it, and returns
// the resulting model.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewParseError(path, 0, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates an in-memory pipeline definition. The path
// is only used to label errors.
func Parse(path string, data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.NewParseError(path, lineOf(err), err)
	}
	if err := ValidatePipeline(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// lineOf recovers the line number from a yaml decode error, or 0 when the
// error carries none.
func lineOf(err error) int {
	if err == nil {
		return 0
	}

	msg := err.Error()
	var typeErr *yaml.TypeError
	if stderrors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		msg = typeErr.Errors[0]
	}

	m := lineRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return n
}
