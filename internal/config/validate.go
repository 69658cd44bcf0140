package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// ValidationError lists every constraint the configuration violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config:\n  " + strings.Join(e.Problems, "\n  ")
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err := def.Unify(value).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	ve := &ValidationError{}
	for _, e := range errors.Errors(err) {
		msg := e.Error()
		if path := strings.Join(e.Path(), "."); path != "" && !strings.Contains(msg, path) {
			msg = path + ": " + msg
		}
		ve.Problems = append(ve.Problems, msg)
	}
	return ve
}
