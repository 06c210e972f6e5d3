// Package serialization implements the .born container used for KAN checkpoints and
// quantized model exports.
//
//	Format Structure (v2):
//	  [0x00-0x03: Magic "BORN"]
//	  [0x04-0x07: Version (uint32 LE)]
//	  [0x08-0x0B: Flags (uint32 LE)]
//	  [0x0C-0x0F: Reserved]
//	  [0x10-0x17: Header Size (uint64 LE)]
//	  [0x18-0x1F: Data Size (uint64 LE)]
//	  [0x20-0x3F: SHA-256 of the data section]
//	  [Header: JSON metadata]
//	  [Tensor data: raw little-endian bytes, 64-byte aligned]
//
// Tensors are stored as Entry values tagged with a dtype: float32, float16 (IEEE half via
// github.com/x448/float16) or int8. Entries are written in name order, so two saves of the
// same state produce identical files apart from the creation timestamp.
//
// Example usage:
//
//	entries := map[string]serialization.Entry{
//	    "layers.0.base_weight": serialization.Float32Entry(w),
//	}
//	err := serialization.WriteFile("model.born", entries, serialization.Header{ModelType: "KAN"})
//
//	r, err := serialization.Open("model.born")
//	defer r.Close()
//	entries, err := r.ReadAll()
package serialization
