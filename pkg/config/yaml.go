package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML decodes a YAML file into v after expanding ${VAR} references
// from the environment. Unknown fields and unset variables are errors, so
// secrets can live in the environment while structure lives in the file.
func LoadYAML[T any](path string, v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrReadingFile, err)
	}
	return DecodeYAML(raw, v)
}

// DecodeYAML is LoadYAML for in-memory documents.
func DecodeYAML[T any](raw []byte, v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	expanded, err := expand(string(raw))
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrParsingFile, err)
	}
	return nil
}

func expand(s string) (string, error) {
	var missing []string
	out := os.Expand(s, func(name string) string {
		if name == "$" {
			return "$"
		}
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %v", ErrUnsetVariable, missing)
	}
	return out, nil
}
