package serialization

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Reader reads tensors from a .born file.
type Reader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64 // Offset where tensor data starts
	dataSize   int64 // Size of the data section
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// Open opens a .born file with strict validation.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{ValidationLevel: ValidationStrict})
}

// OpenWithOptions opens a .born file with custom options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	r := &Reader{file: file, opts: opts}
	if err := r.parseHeader(); err != nil {
		_ = file.Close() // Best effort close on error
		return nil, errors.Wrapf(err, "failed to parse header of %s", path)
	}
	if err := ValidateHeader(&r.header, r.dataSize, opts.ValidationLevel); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "validation failed")
	}
	return r, nil
}

// ReadHeader returns only the header of the .born file at path. Checksums are not verified.
func ReadHeader(path string) (Header, error) {
	r, err := OpenWithOptions(path, ReaderOptions{SkipChecksumValidation: true, ValidationLevel: ValidationNormal})
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = r.Close() }()
	return r.Header(), nil
}

// parseHeader reads the fixed header and the JSON header, and verifies the checksum.
func (r *Reader) parseHeader() error {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return errors.Wrap(err, "failed to read fixed header")
	}
	if string(fixed[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(fixed[4:8])
	if version != FormatVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "got %d, expected %d", version, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [ChecksumSize]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return errors.Wrap(err, "failed to read header JSON")
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return errors.Wrap(err, "failed to parse header JSON")
	}

	r.dataOffset = alignedDataOffset(int64(headerSize))
	info, err := r.file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat file")
	}
	r.dataSize = info.Size() - r.dataOffset
	if r.dataSize < int64(dataSize) {
		return &ValidationError{
			Type:    "truncated",
			Details: "data section shorter than declared in the fixed header",
		}
	}

	if !r.opts.SkipChecksumValidation {
		data := make([]byte, dataSize)
		if _, err := r.file.ReadAt(data, r.dataOffset); err != nil {
			return errors.Wrap(err, "failed to read tensor data for checksum")
		}
		if computeChecksum(data) != stored {
			return ErrChecksumMismatch
		}
	}
	return nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the flags of the fixed header.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the names of all tensors in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, errors.Wrapf(ErrTensorNotFound, "%q", name)
}

// Entry reads a single tensor.
func (r *Reader) Entry(name string) (Entry, error) {
	if r.closed {
		return Entry{}, ErrClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return Entry{}, err
	}
	data := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return Entry{}, errors.Wrapf(err, "failed to read tensor %q", name)
	}
	entry := Entry{DType: meta.DType, Shape: meta.Shape, Data: data}
	if err := entry.check(); err != nil {
		return Entry{}, errors.Wrapf(err, "tensor %q", name)
	}
	return entry, nil
}

// ReadAll reads every tensor in the file.
func (r *Reader) ReadAll() (map[string]Entry, error) {
	entries := make(map[string]Entry, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		entry, err := r.Entry(meta.Name)
		if err != nil {
			return nil, err
		}
		entries[meta.Name] = entry
	}
	return entries, nil
}

// Close closes the reader and the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
