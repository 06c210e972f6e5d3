package mnist

import (
	"math/rand/v2"
)

// Synthetic generates n noisy 28x28 samples: class c lights up a horizontal band starting
// at row 2c, like the embedded demo patterns, plus uniform noise. Values are in [-1, 1].
//
// It stands in for MNIST in tests and when no data directory is available.
func Synthetic(n int, seed uint64) *Dataset {
	const side = 28
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	d := &Dataset{
		images:   make([]float32, n*side*side),
		labels:   make([]int, n),
		features: side * side,
	}
	for i := 0; i < n; i++ {
		label := i % NumClasses
		d.labels[i] = label
		img := d.images[i*side*side : (i+1)*side*side]
		for p := range img {
			img[p] = -1 + 0.3*rng.Float32()
		}
		for row := 2 * label; row < 2*label+8 && row < side; row++ {
			for col := 5; col < 23; col++ {
				img[row*side+col] = 0.6 + 0.4*rng.Float32()
			}
		}
	}
	return d
}
