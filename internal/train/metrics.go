package train

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EpochResult holds the metrics of one epoch. Losses and accuracies are means over batches.
type EpochResult struct {
	Epoch     int           `json:"epoch"` // 1-based
	TrainLoss float64       `json:"train_loss"`
	TrainAcc  float64       `json:"train_accuracy"`
	ValLoss   float64       `json:"val_loss"`
	ValAcc    float64       `json:"val_accuracy"`
	LR        float32       `json:"lr"` // learning rate used during the epoch
	Duration  time.Duration `json:"duration_ns"`
}

// MetricsLogger receives experiment metrics.
type MetricsLogger interface {
	LogEpoch(result EpochResult) error
	LogSummary(summary map[string]any) error
	Close() error
}

// JSONLLogger appends one JSON object per line to a file.
type JSONLLogger struct {
	file *os.File
	enc  *json.Encoder
}

// NewJSONLLogger creates (or truncates) path.
func NewJSONLLogger(path string) (*JSONLLogger, error) {
	//nolint:gosec // G304: metrics path comes from the configuration
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create metrics file")
	}
	return &JSONLLogger{file: f, enc: json.NewEncoder(f)}, nil
}

type jsonlRecord struct {
	Type string `json:"type"`
	EpochResult
}

// LogEpoch writes an {"type":"epoch", ...} record.
func (l *JSONLLogger) LogEpoch(result EpochResult) error {
	return l.enc.Encode(jsonlRecord{Type: "epoch", EpochResult: result})
}

// LogSummary writes summary with an added "type":"summary" key.
func (l *JSONLLogger) LogSummary(summary map[string]any) error {
	record := make(map[string]any, len(summary)+1)
	for k, v := range summary {
		record[k] = v
	}
	record["type"] = "summary"
	return l.enc.Encode(record)
}

// Close closes the file.
func (l *JSONLLogger) Close() error {
	return l.file.Close()
}

// KlogLogger logs metrics at verbosity level 0.
type KlogLogger struct{}

func (KlogLogger) LogEpoch(r EpochResult) error {
	klog.Infof("epoch %d: train loss %.4f acc %.4f, val loss %.4f acc %.4f, lr %.3g (%s)",
		r.Epoch, r.TrainLoss, r.TrainAcc, r.ValLoss, r.ValAcc, r.LR, r.Duration.Round(time.Millisecond))
	return nil
}

func (KlogLogger) LogSummary(summary map[string]any) error {
	klog.Infof("summary: %v", summary)
	return nil
}

func (KlogLogger) Close() error { return nil }

// MultiLogger fans metrics out to several loggers. The first error is returned, after every
// logger has been called.
type MultiLogger []MetricsLogger

func (m MultiLogger) LogEpoch(r EpochResult) error {
	var first error
	for _, l := range m {
		if err := l.LogEpoch(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiLogger) LogSummary(summary map[string]any) error {
	var first error
	for _, l := range m {
		if err := l.LogSummary(summary); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiLogger) Close() error {
	var first error
	for _, l := range m {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
