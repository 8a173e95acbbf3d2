package config

import "github.com/ceyewan/fuse/xerrors"

// Sentinel Errors
var (
	ErrEmptyConfig = xerrors.New("config: configuration is empty")
)
