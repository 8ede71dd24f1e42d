package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrNilPointer is returned when a nil pointer is provided to Load.
	ErrNilPointer = errors.New("nil pointer provided")

	// ErrReadingFile is returned when a config file cannot be read.
	ErrReadingFile = errors.New("failed to read config file")

	// ErrParsingFile is returned when a config file is not valid YAML for the target type.
	ErrParsingFile = errors.New("failed to parse config file")

	// ErrUnsetVariable is returned when a config file references an undefined variable.
	ErrUnsetVariable = errors.New("config file references an unset variable")
)
