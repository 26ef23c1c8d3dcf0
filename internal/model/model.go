// Package model loads and runs the position scoring model.
//
// Two runtimes are supported: ONNX files (the Keras model exported with
// tf2onnx) executed through onnxruntime, and dense networks stored in the
// native CNET weights format executed in pure Go.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hailam/chessnet/internal/features"
)

// ErrModelLoad wraps every failure to load a model.
var ErrModelLoad = errors.New("model load failed")

// Model scores a batch of feature vectors, one scalar per sample.
// Implementations are read-only after loading and safe for concurrent use.
type Model interface {
	Predict(batch []features.Vector) ([]float32, error)
	Close() error
}

// LoadOptions configures Load.
type LoadOptions struct {
	// ORTLibraryPath is the onnxruntime shared library. Empty means the
	// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable, then the
	// platform default name.
	ORTLibraryPath string
}

// Load opens the model at path. Files ending in .onnx use onnxruntime,
// everything else is read as a native weights file.
func Load(path string, opts LoadOptions) (Model, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrModelLoad)
	}

	if strings.EqualFold(filepath.Ext(path), ".onnx") {
		m, err := LoadONNX(path, opts.ORTLibraryPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
		}
		return m, nil
	}

	net, err := LoadNetwork(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	return net, nil
}
