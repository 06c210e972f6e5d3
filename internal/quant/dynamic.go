package quant

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/born-ml/kan/internal/kan"
)

// Report summarizes a quantization pass.
type Report struct {
	Layers         int     // Number of quantized base weights
	FloatBytes     int64   // Size of the quantized weights before quantization
	QuantizedBytes int64   // Size after quantization, scales included
	MaxAbsError    float32 // Largest |w - dequant(q)| over all quantized weights
	TotalBytes     int64   // Size of every parameter of the quantized stack
}

// Ratio returns FloatBytes / QuantizedBytes.
func (r *Report) Ratio() float64 {
	if r.QuantizedBytes == 0 {
		return 0
	}
	return float64(r.FloatBytes) / float64(r.QuantizedBytes)
}

func (r *Report) String() string {
	return fmt.Sprintf("%d base weights: %s -> %s (%.1fx), max error %.3g, model size %s",
		r.Layers, humanize.Bytes(uint64(r.FloatBytes)), humanize.Bytes(uint64(r.QuantizedBytes)),
		r.Ratio(), r.MaxAbsError, humanize.Bytes(uint64(r.TotalBytes)))
}

// QuantizeDynamic returns an inference copy of s whose base branches run on int8 weights.
// The spline weights, scalers and post-processing parameters are shared with s, unchanged.
//
// The copy cannot be trained: its layers panic in Backward.
func QuantizeDynamic(s *kan.Stack) (*kan.Stack, *Report) {
	report := &Report{}
	quantized := s.WithBaseProjectors(func(index int, layer *kan.Layer) kan.BaseProjector {
		w := layer.BaseWeight.Tensor()
		q := QuantizeLinear(w)
		report.Layers++
		report.FloatBytes += 4 * int64(w.NumElements())
		report.QuantizedBytes += q.Bytes()
		deq := q.Dequantize().Data()
		for i, v := range w.Data() {
			report.MaxAbsError = max(report.MaxAbsError, float32(math.Abs(float64(v-deq[i]))))
		}
		return q
	})
	report.TotalBytes = 4*int64(s.NumParameters()) - report.FloatBytes + report.QuantizedBytes
	klog.V(1).Infof("quant: %s", report)
	return quantized, report
}
