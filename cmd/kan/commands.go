package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/loader"
	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/quant"
	"github.com/born-ml/kan/internal/train"
)

var (
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", 100*v)
}

func printSummary(s *train.Summary) {
	epochs := newTable("Epoch", "Train loss", "Train acc", "Val loss", "Val acc", "LR", "Time")
	for _, r := range s.History {
		epochs.Row(fmt.Sprint(r.Epoch), fmt.Sprintf("%.4f", r.TrainLoss), percent(r.TrainAcc),
			fmt.Sprintf("%.4f", r.ValLoss), percent(r.ValAcc), fmt.Sprintf("%.3g", r.LR),
			r.Duration.Round(time.Millisecond).String())
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Training (%s parameters)", humanize.Comma(int64(s.NumParameters)))))
	fmt.Println(epochs.String())

	q := s.Quantization
	models := newTable("Model", "File", "Size", "Val acc", "Eval time")
	models.Row("float32", s.ModelPath, humanize.Bytes(uint64(s.ModelBytes)), percent(q.Original.Accuracy),
		q.Original.Duration.Round(time.Millisecond).String())
	models.Row("int8 base", s.QuantizedPath, humanize.Bytes(uint64(s.QuantizedBytes)), percent(q.Quantized.Accuracy),
		q.Quantized.Duration.Round(time.Millisecond).String())
	fmt.Println(titleStyle.Render("Dynamic quantization"))
	fmt.Println(models.String())
	fmt.Printf("%s\nspeedup %.2fx\n", q.Report, q.Speedup())
}

// runEval evaluates a float or quantized model file on the validation data of cfg.
func runEval(cfg train.Config, path string) {
	if path == "" {
		exceptions.Panicf("eval needs -model")
	}
	modelType, _ := must.M2(nn.ReadModelMetadata(path))
	var model *kan.Stack
	switch modelType {
	case quant.ModelType:
		model = must.M1(quant.Load(path))
	default:
		model = must.M1(kan.FromCheckpoint(path))
	}
	_, valSet := must.M2(train.LoadData(cfg))
	r := train.Evaluate(model, valSet, cfg.EvalBatchSize)

	table := newTable("Model", "Type", "Samples", "Loss", "Accuracy", "Time")
	table.Row(path, modelType, humanize.Comma(int64(r.Samples)), fmt.Sprintf("%.4f", r.Loss),
		percent(r.Accuracy), r.Duration.Round(time.Millisecond).String())
	fmt.Println(table.String())
}

// runImport converts a SafeTensors KAN into a .born model.
func runImport(cfg train.Config, from, to string, order int) {
	if from == "" || to == "" {
		exceptions.Panicf("import needs -safetensors and -model")
	}
	opts := must.M1(cfg.KANOptions())
	s := must.M1(loader.ImportStack(from, order, opts))
	must.M(kan.Save(to, s, cfg.HalfPrecision))
	printLayers(s)
	fmt.Printf("imported %s -> %s\n", from, to)
}

// runExport writes a .born model as SafeTensors.
func runExport(from, to string) {
	if from == "" || to == "" {
		exceptions.Panicf("export needs -model and -safetensors")
	}
	s := must.M1(kan.FromCheckpoint(from))
	must.M(loader.ExportStack(to, s))
	printLayers(s)
	fmt.Printf("exported %s -> %s\n", from, to)
}

func printLayers(s *kan.Stack) {
	table := newTable("Layer", "In", "Out", "Grid", "Order")
	for i, c := range s.Configs() {
		table.Row(fmt.Sprint(i), fmt.Sprint(c.InFeatures), fmt.Sprint(c.OutFeatures),
			fmt.Sprint(c.GridSize), fmt.Sprint(c.SplineOrder))
	}
	fmt.Println(table.String())
	fmt.Printf("%s parameters\n", humanize.Comma(int64(s.NumParameters())))
}
