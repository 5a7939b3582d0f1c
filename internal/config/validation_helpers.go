package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// convertValidationError maps a validator error onto the field path users
// see in their definition file.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !stderrors.As(err, &ves) || len(ves) == 0 {
		return errors.NewValidationError("pipeline", err.Error(), err)
	}

	field := fieldPath(ves[0])
	msg := fmt.Sprintf("%s failed the '%s' rule", field, ves[0].Tag())
	return errors.NewValidationError(field, msg, err)
}

// fieldPath renders a struct namespace such as "Pipeline.Flow.Name" as the
// path used in the YAML document, "flow.name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if dot := strings.IndexByte(ns, '.'); dot >= 0 {
		ns = ns[dot+1:]
	}
	return strings.ToLower(ns)
}

func fieldForNode(i int, field string) string {
	return fmt.Sprintf("flow.nodes[%d].%s", i, field)
}

func fieldForEdge(i int, field string) string {
	return fmt.Sprintf("flow.edges[%d].%s", i, field)
}
