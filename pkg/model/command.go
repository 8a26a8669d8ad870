package model

import (
	"context"
	"errors"
)

// Command errors.
var (
	ErrCommandNotFound   = errors.New("command not found")
	ErrInvalidParameters = errors.New("invalid command parameters")
)

// CommandHandler executes a command invocation on the owning endpoint.
// The context carries the caller's deadline; handlers should honor it.
// Returns a result map (may be nil) or an error.
type CommandHandler func(ctx context.Context, params map[string]any) (map[string]any, error)

// CommandMetadata describes a command's schema.
type CommandMetadata struct {
	// ID is the command identifier within the cluster.
	ID CommandID

	// Name is the human-readable command name.
	Name string

	// Description is a human-readable description.
	Description string

	// Parameters describes the expected parameters.
	Parameters []ParameterMetadata

	// Response describes the response fields; empty for void commands.
	Response []ParameterMetadata
}

// ParameterMetadata describes a command parameter or response field.
type ParameterMetadata struct {
	// Name is the parameter name.
	Name string

	// Type is the data type.
	Type DataType

	// Required indicates if the parameter is mandatory.
	Required bool

	// Description is a human-readable description.
	Description string
}

// ValidateParams checks that all required parameters are present.
func (m *CommandMetadata) ValidateParams(params map[string]any) error {
	for _, p := range m.Parameters {
		if p.Required {
			if _, exists := params[p.Name]; !exists {
				return ErrInvalidParameters
			}
		}
	}
	return nil
}
