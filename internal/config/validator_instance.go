package config

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepIDPattern  = regexp.MustCompile(`^[a-z0-9_-]+$`)
	envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	sourceSchemes = map[string]struct{}{
		"file":           {},
		"key":            {},
		"module":         {},
		"git":            {},
		"git+https":      {},
		"git+ssh":        {},
		"ssh":            {},
		"http":           {},
		"https":          {},
		"github":         {},
		"github+private": {},
	}
)

// validatorInstance configures and returns the shared validator instance
// used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("source_uri", func(fl validator.FieldLevel) bool {
			return isValidSource(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// isValidSource performs syntactic validation of a source URI without
// touching the filesystem or the network. Accepted forms are absolute
// paths, explicitly relative paths, ~ or $VAR prefixed paths, and URIs
// carrying a scheme the resolver package registers.
func isValidSource(source string) bool {
	if strings.TrimSpace(source) == "" {
		return false
	}
	if strings.Contains(source, "\x00") {
		return false
	}

	if filepath.IsAbs(source) {
		return true
	}
	for _, prefix := range []string{"./", "../", "~", "$"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}

	parsed, err := url.Parse(source)
	if err != nil {
		return false
	}
	if _, ok := sourceSchemes[parsed.Scheme]; !ok {
		return false
	}
	return parsed.Host != "" || parsed.Opaque != "" || parsed.Path != ""
}
