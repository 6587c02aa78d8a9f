package tool

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode converts a validated parameter map into a typed struct. Field names
// are matched through `json` tags; numbers decode weakly so JSON float64
// values populate int fields.
func Decode(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return &ValidationError{Message: "parameters do not match expected shape", Details: []string{err.Error()}}
	}
	return nil
}
