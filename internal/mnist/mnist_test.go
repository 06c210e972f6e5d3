package mnist

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIDX writes a tiny split (n images of 2x3 pixels) to dir.
func writeIDX(t *testing.T, dir string, split Split, n int, compress bool) {
	t.Helper()
	imageName, labelName := split.fileNames()

	var images bytes.Buffer
	for _, v := range []uint32{imagesMagic, uint32(n), 2, 3} {
		require.NoError(t, binary.Write(&images, binary.BigEndian, v))
	}
	for i := 0; i < n*6; i++ {
		images.WriteByte(byte(i * 17 % 256))
	}

	var labels bytes.Buffer
	for _, v := range []uint32{labelsMagic, uint32(n)} {
		require.NoError(t, binary.Write(&labels, binary.BigEndian, v))
	}
	for i := 0; i < n; i++ {
		labels.WriteByte(byte(i % NumClasses))
	}

	write := func(name string, data []byte) {
		path := filepath.Join(dir, name)
		if compress {
			var gz bytes.Buffer
			w := gzip.NewWriter(&gz)
			_, err := w.Write(data)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			data, path = gz.Bytes(), path+".gz"
		}
		require.NoError(t, os.WriteFile(path, data, 0o600))
	}
	write(imageName, images.Bytes())
	write(labelName, labels.Bytes())
}

func TestLoad(t *testing.T) {
	for _, compress := range []bool{false, true} {
		dir := t.TempDir()
		writeIDX(t, dir, Train, 12, compress)

		d, err := Load(dir, Train, 0)
		require.NoError(t, err, "compressed=%v", compress)
		assert.Equal(t, 12, d.Len())
		assert.Equal(t, 6, d.Features())

		img, label := d.Sample(1)
		assert.Equal(t, 1, label)
		assert.InDelta(t, Normalize(6*17), img[0], 1e-6)
		for i := 0; i < d.Len(); i++ {
			img, _ := d.Sample(i)
			for _, v := range img {
				assert.GreaterOrEqual(t, v, float32(-1))
				assert.LessOrEqual(t, v, float32(1))
			}
		}
	}
}

func TestLoadMaxSamples(t *testing.T) {
	dir := t.TempDir()
	writeIDX(t, dir, Test, 10, false)
	d, err := Load(dir, Test, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Len())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, Train, 0)
	assert.Error(t, err, "missing files")

	writeIDX(t, dir, Train, 5, false)
	imageName, labelName := Train.fileNames()

	// Swap the files: magic numbers no longer match.
	images, err := os.ReadFile(filepath.Join(dir, imageName))
	require.NoError(t, err)
	labels, err := os.ReadFile(filepath.Join(dir, labelName))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, imageName), labels, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, labelName), images, 0o600))
	_, err = Load(dir, Train, 0)
	assert.ErrorContains(t, err, "invalid magic number")

	// Fewer labels than images.
	dir = t.TempDir()
	writeIDX(t, dir, Train, 5, false)
	other := t.TempDir()
	writeIDX(t, other, Train, 3, false)
	short, err := os.ReadFile(filepath.Join(other, labelName))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, labelName), short, 0o600))
	_, err = Load(dir, Train, 0)
	assert.ErrorContains(t, err, "label count")

	// Truncated pixel data.
	dir = t.TempDir()
	writeIDX(t, dir, Train, 5, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, imageName), images[:len(images)-3], 0o600))
	_, err = Load(dir, Train, 0)
	assert.Error(t, err)
}

func TestReadIDXImagesHugeDeclaredCount(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []uint32{imagesMagic, 4_000_000_000, 28, 28} {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}
	buf.Write(make([]byte, 100))
	path := filepath.Join(t.TempDir(), "images.idx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	_, _, _, _, err := readIDXImages(path, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var labels bytes.Buffer
	for _, v := range []uint32{labelsMagic, 4_000_000_000} {
		require.NoError(t, binary.Write(&labels, binary.BigEndian, v))
	}
	labels.Write([]byte{1, 2, 3})
	path = filepath.Join(t.TempDir(), "labels.idx")
	require.NoError(t, os.WriteFile(path, labels.Bytes(), 0o600))
	_, err = readIDXLabels(path, 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float32(-1), Normalize(0))
	assert.Equal(t, float32(1), Normalize(255))
	assert.InDelta(t, 0, Normalize(127), 0.01)
}

func TestBatches(t *testing.T) {
	d := Synthetic(25, 1)

	batches := d.Batches(10, nil)
	require.Len(t, batches, 3)
	assert.Equal(t, 10, batches[0].Size())
	assert.Equal(t, 5, batches[2].Size())
	assert.Equal(t, 784, batches[0].Images.Dim(1))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, batches[0].Labels)

	first, _ := d.Sample(0)
	assert.Equal(t, first, batches[0].Images.Row(0))

	// Shuffling is a permutation and depends only on the seed.
	shuffled := d.Batches(10, rand.New(rand.NewPCG(3, 4)))
	again := d.Batches(10, rand.New(rand.NewPCG(3, 4)))
	counts := make(map[int]int)
	for i, b := range shuffled {
		assert.Equal(t, b.Labels, again[i].Labels)
		for _, l := range b.Labels {
			counts[l]++
		}
	}
	for label := 0; label < NumClasses; label++ {
		want := 2
		if label < 5 {
			want = 3
		}
		assert.Equal(t, want, counts[label], "label %d", label)
	}
}

func TestSynthetic(t *testing.T) {
	a, b := Synthetic(20, 9), Synthetic(20, 9)
	assert.Equal(t, 20, a.Len())
	for i := 0; i < a.Len(); i++ {
		imgA, labelA := a.Sample(i)
		imgB, labelB := b.Sample(i)
		assert.Equal(t, imgA, imgB)
		assert.Equal(t, i%NumClasses, labelA)
		assert.Equal(t, labelA, labelB)
	}
}

func TestNewDatasetAndSplit(t *testing.T) {
	_, err := NewDataset([][]float32{{1, 2}}, []int{0, 1})
	assert.Error(t, err)
	_, err = NewDataset([][]float32{{1, 2}, {3}}, []int{0, 1})
	assert.Error(t, err)

	d, err := NewDataset([][]float32{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, []int{0, 1, 2, 3})
	require.NoError(t, err)
	train, val := d.Split(0.75)
	assert.Equal(t, 3, train.Len())
	assert.Equal(t, 1, val.Len())
	img, label := val.Sample(0)
	assert.Equal(t, []float32{7, 8}, img)
	assert.Equal(t, 3, label)
}
