package config

import "errors"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("failed to read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errBlockSizeInvalid   = errors.New("block_size must be positive")
	errBucketCapInvalid   = errors.New("bucket_cap must be positive")
	errMaxLiteralTooSmall = errors.New("max_literal must be at least block_size")
)
