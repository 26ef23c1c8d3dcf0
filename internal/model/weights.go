package model

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Weight file format constants
const (
	MagicNumber = 0x54454E43 // "CNET" little-endian
	Version     = 1

	maxLayers     = 64
	maxLayerWidth = 1 << 16
)

// FileHeader is the header of the weight file.
type FileHeader struct {
	Magic     uint32
	Version   uint32
	NumLayers uint32
}

// LayerHeader precedes every layer's parameters.
type LayerHeader struct {
	In         uint32
	Out        uint32
	Activation uint32
}

// LoadNetwork loads network weights from a binary file.
// File format (little-endian):
//   - Header: Magic (4 bytes), Version (4 bytes), NumLayers (4 bytes)
//   - Per layer: In, Out, Activation (4 bytes each),
//     then Out*In float32 weights (row-major by output) and Out float32 biases
func LoadNetwork(filename string) (*Network, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()

	return ReadNetwork(bufio.NewReader(f))
}

// ReadNetwork reads network weights from an io.Reader.
func ReadNetwork(r io.Reader) (*Network, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("invalid magic number: expected %x, got %x", MagicNumber, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("unsupported version: expected %d, got %d", Version, header.Version)
	}
	if header.NumLayers == 0 || header.NumLayers > maxLayers {
		return nil, fmt.Errorf("invalid layer count %d", header.NumLayers)
	}

	net := &Network{Layers: make([]Layer, 0, header.NumLayers)}
	for i := uint32(0); i < header.NumLayers; i++ {
		var lh LayerHeader
		if err := binary.Read(r, binary.LittleEndian, &lh); err != nil {
			return nil, fmt.Errorf("failed to read layer %d header: %w", i, err)
		}
		if lh.In == 0 || lh.Out == 0 || lh.In > maxLayerWidth || lh.Out > maxLayerWidth {
			return nil, fmt.Errorf("layer %d has invalid shape %dx%d", i, lh.In, lh.Out)
		}

		l := Layer{
			In:         int(lh.In),
			Out:        int(lh.Out),
			Activation: Activation(lh.Activation),
			Weights:    make([]float32, lh.In*lh.Out),
			Bias:       make([]float32, lh.Out),
		}
		if err := binary.Read(r, binary.LittleEndian, l.Weights); err != nil {
			return nil, fmt.Errorf("failed to read layer %d weights: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, l.Bias); err != nil {
			return nil, fmt.Errorf("failed to read layer %d bias: %w", i, err)
		}
		net.Layers = append(net.Layers, l)
	}

	if err := net.validate(); err != nil {
		return nil, err
	}
	return net, nil
}

// Save writes network weights to a binary file.
func (n *Network) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := n.Write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush weights: %w", err)
	}
	return f.Close()
}

// Write serialises the network to w.
func (n *Network) Write(w io.Writer) error {
	if err := n.validate(); err != nil {
		return err
	}

	header := FileHeader{
		Magic:     MagicNumber,
		Version:   Version,
		NumLayers: uint32(len(n.Layers)),
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, l := range n.Layers {
		lh := LayerHeader{In: uint32(l.In), Out: uint32(l.Out), Activation: uint32(l.Activation)}
		if err := binary.Write(w, binary.LittleEndian, &lh); err != nil {
			return fmt.Errorf("failed to write layer %d header: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, l.Weights); err != nil {
			return fmt.Errorf("failed to write layer %d weights: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, l.Bias); err != nil {
			return fmt.Errorf("failed to write layer %d bias: %w", i, err)
		}
	}

	return nil
}
