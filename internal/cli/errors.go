package cli

import "errors"

// Errors returned while parsing flags and loading config.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrObjectsDirEmpty    = errors.New("objects-dir cannot be empty")
	ErrFlagRequiresArg    = errors.New("flag requires an argument")
	ErrUnknownFlag        = errors.New("unknown flag")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrUnexpectedArgs     = errors.New("unexpected arguments")
)
