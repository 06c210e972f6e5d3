// Package mnist loads the MNIST handwritten digit dataset and batches it for training.
//
// Images are flattened to 784 features and normalized to [-1, 1]
// ((pixel/255 - 0.5) / 0.5), the range the KAN grid covers by default.
package mnist

import (
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/kan/internal/tensor"
)

// NumClasses is the number of digit classes.
const NumClasses = 10

// Split selects the training or the test set.
type Split int

const (
	Train Split = iota
	Test
)

func (s Split) String() string {
	if s == Train {
		return "train"
	}
	return "test"
}

// fileNames returns the image and label file names of a split.
func (s Split) fileNames() (images, labels string) {
	if s == Train {
		return "train-images-idx3-ubyte", "train-labels-idx1-ubyte"
	}
	return "t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte"
}

// Dataset holds normalized images and their labels.
type Dataset struct {
	images   []float32 // [n, features], row-major
	labels   []int
	features int
}

// NewDataset builds a dataset from normalized images and labels.
func NewDataset(images [][]float32, labels []int) (*Dataset, error) {
	if len(images) != len(labels) {
		return nil, errors.Errorf("image count (%d) != label count (%d)", len(images), len(labels))
	}
	if len(images) == 0 {
		return nil, errors.New("empty dataset")
	}
	d := &Dataset{features: len(images[0]), labels: append([]int(nil), labels...)}
	for i, img := range images {
		if len(img) != d.features {
			return nil, errors.Errorf("image %d has %d features, want %d", i, len(img), d.features)
		}
		d.images = append(d.images, img...)
	}
	return d, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.labels)
}

// Features returns the number of features per sample.
func (d *Dataset) Features() int {
	return d.features
}

// Sample returns image i (sharing storage) and its label.
func (d *Dataset) Sample(i int) ([]float32, int) {
	return d.images[i*d.features : (i+1)*d.features], d.labels[i]
}

// Normalize maps a pixel in [0, 255] to [-1, 1].
func Normalize(pixel byte) float32 {
	return (float32(pixel)/255 - 0.5) / 0.5
}

// findFile returns dir/name, or dir/name.gz if only the compressed file exists.
func findFile(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		if _, gzErr := os.Stat(path + ".gz"); gzErr == nil {
			return path + ".gz"
		}
	}
	return path
}

// Load reads a split of MNIST from the IDX files in dir (raw or gzip compressed).
//
// Expected files in dir:
//   - train-images-idx3-ubyte[.gz], train-labels-idx1-ubyte[.gz]
//   - t10k-images-idx3-ubyte[.gz], t10k-labels-idx1-ubyte[.gz]
//
// At most maxSamples samples are loaded (0 = all).
func Load(dir string, split Split, maxSamples int) (*Dataset, error) {
	imageName, labelName := split.fileNames()
	pixels, count, rows, cols, err := readIDXImages(findFile(dir, imageName), maxSamples)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load images")
	}
	labels, err := readIDXLabels(findFile(dir, labelName), maxSamples)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load labels")
	}
	if len(labels) != count {
		return nil, errors.Errorf("image count (%d) != label count (%d)", count, len(labels))
	}

	d := &Dataset{
		images:   make([]float32, len(pixels)),
		labels:   make([]int, count),
		features: rows * cols,
	}
	for i, p := range pixels {
		d.images[i] = Normalize(p)
	}
	for i, l := range labels {
		if l >= NumClasses {
			return nil, errors.Errorf("label %d of sample %d out of range", l, i)
		}
		d.labels[i] = int(l)
	}
	klog.V(1).Infof("mnist: loaded %d %s samples of %dx%d from %s", count, split, rows, cols, dir)
	return d, nil
}

// Batch is a group of samples ready to feed a model.
type Batch struct {
	Images *tensor.Tensor // [batch, features]
	Labels []int
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	return len(b.Labels)
}

// Batches splits the dataset into batches of batchSize; the last one may be smaller.
// If rng is not nil the samples are shuffled first, otherwise dataset order is kept.
func (d *Dataset) Batches(batchSize int, rng *rand.Rand) []Batch {
	if batchSize <= 0 {
		batchSize = d.Len()
	}
	order := make([]int, d.Len())
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	batches := make([]Batch, 0, (len(order)+batchSize-1)/batchSize)
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		data := make([]float32, 0, (end-start)*d.features)
		labels := make([]int, 0, end-start)
		for _, idx := range order[start:end] {
			img, label := d.Sample(idx)
			data = append(data, img...)
			labels = append(labels, label)
		}
		images, err := tensor.FromSlice(data, tensor.Shape{end - start, d.features})
		if err != nil {
			panic(err) // sizes are computed above
		}
		batches = append(batches, Batch{Images: images, Labels: labels})
	}
	return batches
}

// Split divides the dataset into two, the first holding fraction of the samples.
func (d *Dataset) Split(fraction float64) (*Dataset, *Dataset) {
	n := int(float64(d.Len()) * fraction)
	n = max(1, min(n, d.Len()-1))
	first := &Dataset{images: d.images[:n*d.features], labels: d.labels[:n], features: d.features}
	second := &Dataset{images: d.images[n*d.features:], labels: d.labels[n:], features: d.features}
	return first, second
}
