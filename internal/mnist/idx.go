package mnist

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// IDX magic numbers (big-endian).
const (
	imagesMagic = 0x00000803 // 2051: unsigned bytes, 3 dimensions
	labelsMagic = 0x00000801 // 2049: unsigned bytes, 1 dimension
)

// openIDX opens an IDX file, transparently decompressing gzip files.
func openIDX(path string) (io.Reader, func() error, error) {
	//nolint:gosec // G304: dataset path comes from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	buffered := bufio.NewReader(file)
	head, err := buffered.Peek(2)
	if err == nil && head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			_ = file.Close()
			return nil, nil, errors.Wrapf(err, "%s: bad gzip stream", path)
		}
		return gz, func() error {
			_ = gz.Close()
			return file.Close()
		}, nil
	}
	return buffered, file.Close, nil
}

func readHeader(r io.Reader, fields ...*uint32) error {
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// readPayload reads exactly n bytes. The buffer grows with the data actually present, so a
// header declaring more data than the file holds fails without allocating the declared size.
func readPayload(r io.Reader, n int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if len(data) < n {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "got %d of %d bytes", len(data), n)
	}
	return data, nil
}

// readIDXImages reads an image file in IDX format.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes (28)
//	number of cols: 4 bytes (28)
//	pixel data: unsigned bytes (0-255), row-major
//
// At most maxImages images are read (0 = all). Returns the pixels of all images
// concatenated, and the image dimensions.
func readIDXImages(path string, maxImages int) (pixels []byte, count, rows, cols int, err error) {
	r, closeFn, err := openIDX(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer func() { _ = closeFn() }()

	var magic, numImages, numRows, numCols uint32
	if err := readHeader(r, &magic, &numImages, &numRows, &numCols); err != nil {
		return nil, 0, 0, 0, errors.Wrapf(err, "%s: failed to read header", path)
	}
	if magic != imagesMagic {
		return nil, 0, 0, 0, errors.Errorf("%s: invalid magic number: got %d, want %d", path, magic, imagesMagic)
	}
	if numRows == 0 || numCols == 0 || numRows > 4096 || numCols > 4096 {
		return nil, 0, 0, 0, errors.Errorf("%s: implausible image size %dx%d", path, numRows, numCols)
	}

	count = int(numImages)
	if maxImages > 0 && count > maxImages {
		count = maxImages
	}
	rows, cols = int(numRows), int(numCols)
	pixels, err = readPayload(r, count*rows*cols)
	if err != nil {
		return nil, 0, 0, 0, errors.Wrapf(err, "%s: failed to read %d images", path, count)
	}
	return pixels, count, rows, cols, nil
}

// readIDXLabels reads a label file in IDX format.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes (0-9)
func readIDXLabels(path string, maxLabels int) ([]byte, error) {
	r, closeFn, err := openIDX(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeFn() }()

	var magic, numLabels uint32
	if err := readHeader(r, &magic, &numLabels); err != nil {
		return nil, errors.Wrapf(err, "%s: failed to read header", path)
	}
	if magic != labelsMagic {
		return nil, errors.Errorf("%s: invalid magic number: got %d, want %d", path, magic, labelsMagic)
	}

	count := int(numLabels)
	if maxLabels > 0 && count > maxLabels {
		count = maxLabels
	}
	labels, err := readPayload(r, count)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to read %d labels", path, count)
	}
	return labels, nil
}
