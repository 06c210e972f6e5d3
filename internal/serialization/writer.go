package serialization

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// WriteFile writes entries to path in the .born v2 format.
//
// The header's Tensors, FormatVersion and (if zero) CreatedAt fields are filled in here;
// callers set ModelType, Metadata and CheckpointMeta. Tensors are written in name order.
func WriteFile(path string, entries map[string]Entry, header Header) (err error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "failed to close file")
		}
	}()

	names := make([]string, 0, len(entries))
	for name := range entries {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header.FormatVersion = FormatVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	header.Tensors = make([]TensorMeta, 0, len(names))

	// Calculate tensor offsets and collect tensor data.
	var data []byte
	flags := uint32(0)
	for _, name := range names {
		entry := entries[name]
		if err := entry.check(); err != nil {
			return errors.Wrapf(err, "tensor %q", name)
		}
		if entry.DType == DTypeInt8 {
			flags |= FlagQuantized
		}
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  entry.DType,
			Shape:  []int(entry.Shape.Clone()),
			Offset: int64(len(data)),
			Size:   int64(len(entry.Data)),
		})
		data = append(data, entry.Data...)
	}
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil && header.CheckpointMeta.OptimizerType != "" {
		flags |= FlagHasOptimizer
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	// Fixed header (64 bytes).
	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersion))
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	checksum := computeChecksum(data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := file.Write(fixed); err != nil {
		return errors.Wrap(err, "failed to write fixed header")
	}
	if _, err := file.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header JSON")
	}

	padding := alignedDataOffset(int64(len(headerJSON))) - int64(FixedHeaderSize) - int64(len(headerJSON))
	if padding > 0 {
		if _, err := file.Write(make([]byte, padding)); err != nil {
			return errors.Wrap(err, "failed to write padding")
		}
	}

	if _, err := file.Write(data); err != nil {
		return errors.Wrap(err, "failed to write tensor data")
	}
	return nil
}
