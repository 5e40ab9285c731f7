package kernels

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either the compact Parse form
//
//	kernel: bicubic:b=0:c=0.5
//
// or a mapping with name, b, c and taps keys.
func (k *Kernel) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := Parse(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*k = parsed
		return nil
	}

	type plain Kernel
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed := Kernel(raw)
	if a, ok := aliases[parsed.Name]; ok {
		parsed = a
	}
	if err := parsed.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*k = parsed
	return nil
}
