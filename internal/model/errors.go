package model

import "errors"

var (
	// ErrDownload means the artifact could not be fetched from its remote location.
	ErrDownload = errors.New("model download failed")
	// ErrDeserialization means the local artifact is unreadable or incompatible.
	ErrDeserialization = errors.New("model deserialization failed")
	// ErrInference means the model rejected its input.
	ErrInference = errors.New("inference failed")
)
