package model

import (
	"fmt"
	"math"

	"github.com/hailam/chessnet/internal/features"
)

// Activation is a layer's nonlinearity.
type Activation uint32

const (
	Linear Activation = iota
	ReLU
	Sigmoid
	Tanh
)

func (a Activation) String() string {
	switch a {
	case Linear:
		return "linear"
	case ReLU:
		return "relu"
	case Sigmoid:
		return "sigmoid"
	case Tanh:
		return "tanh"
	}
	return fmt.Sprintf("activation(%d)", uint32(a))
}

func (a Activation) apply(x float32) float32 {
	switch a {
	case ReLU:
		if x < 0 {
			return 0
		}
		return x
	case Sigmoid:
		return float32(1 / (1 + math.Exp(-float64(x))))
	case Tanh:
		return float32(math.Tanh(float64(x)))
	}
	return x
}

// Layer is a fully connected layer. Weights are stored row-major by output:
// Weights[o*In+i] connects input i to output o.
type Layer struct {
	In, Out    int
	Activation Activation
	Weights    []float32
	Bias       []float32
}

// Network is a dense feed-forward network mapping a feature vector to one
// scalar. It never mutates itself during inference.
type Network struct {
	Layers []Layer
}

// NewNetwork creates a zero-weight network. sizes lists the width of every
// layer after the input, so NewNetwork([]int{64, 1}, ...) builds
// 773 -> 64 -> 1. One activation per layer is required.
func NewNetwork(sizes []int, activations []Activation) (*Network, error) {
	if len(sizes) == 0 || len(sizes) != len(activations) {
		return nil, fmt.Errorf("need one activation per layer: %d sizes, %d activations", len(sizes), len(activations))
	}
	net := &Network{}
	in := features.Size
	for i, out := range sizes {
		if out <= 0 {
			return nil, fmt.Errorf("layer %d has width %d", i, out)
		}
		net.Layers = append(net.Layers, Layer{
			In:         in,
			Out:        out,
			Activation: activations[i],
			Weights:    make([]float32, in*out),
			Bias:       make([]float32, out),
		})
		in = out
	}
	if err := net.validate(); err != nil {
		return nil, err
	}
	return net, nil
}

// validate checks that the network maps a feature vector to one scalar.
func (n *Network) validate() error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("network has no layers")
	}
	if n.Layers[0].In != features.Size {
		return fmt.Errorf("input width %d, expected %d", n.Layers[0].In, features.Size)
	}
	if last := n.Layers[len(n.Layers)-1]; last.Out != 1 {
		return fmt.Errorf("output width %d, expected 1", last.Out)
	}
	for i := 1; i < len(n.Layers); i++ {
		if n.Layers[i].In != n.Layers[i-1].Out {
			return fmt.Errorf("layer %d input %d does not match layer %d output %d",
				i, n.Layers[i].In, i-1, n.Layers[i-1].Out)
		}
	}
	for i, l := range n.Layers {
		if len(l.Weights) != l.In*l.Out || len(l.Bias) != l.Out {
			return fmt.Errorf("layer %d has %d weights and %d biases for %dx%d",
				i, len(l.Weights), len(l.Bias), l.In, l.Out)
		}
		if l.Activation > Tanh {
			return fmt.Errorf("layer %d: unknown %v", i, l.Activation)
		}
	}
	return nil
}

// Forward computes the network output for one vector.
func (n *Network) Forward(v *features.Vector) float32 {
	in := v[:]

	for _, l := range n.Layers {
		out := make([]float32, l.Out)
		for o := 0; o < l.Out; o++ {
			sum := l.Bias[o]
			row := l.Weights[o*l.In : (o+1)*l.In]
			for i, x := range in {
				// Inputs are mostly zero bits.
				if x == 0 {
					continue
				}
				sum += row[i] * x
			}
			out[o] = l.Activation.apply(sum)
		}
		in = out
	}

	return in[0]
}

// Predict implements Model.
func (n *Network) Predict(batch []features.Vector) ([]float32, error) {
	out := make([]float32, len(batch))
	for i := range batch {
		out[i] = n.Forward(&batch[i])
	}
	return out, nil
}

// Close implements Model. A native network holds no external resources.
func (n *Network) Close() error {
	return nil
}

// InitRandom fills weights with small deterministic values (for testing only).
func (n *Network) InitRandom(seed int64) {
	// Simple LCG for reproducibility
	state := uint64(seed)
	next := func() float32 {
		state = state*6364136223846793005 + 1442695040888963407
		return (float32((state>>40)&0xFFFF)/65535 - 0.5) * 0.2 // -0.1 to 0.1
	}

	for li := range n.Layers {
		l := &n.Layers[li]
		for i := range l.Weights {
			l.Weights[i] = next()
		}
		for i := range l.Bias {
			l.Bias[i] = next()
		}
	}
}
