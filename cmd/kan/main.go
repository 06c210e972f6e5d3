// Package main provides the KAN MNIST command line: train a stack, quantize it and compare
// both models.
//
// Usage:
//
//	kan [train] [flags]            train, save, quantize and evaluate (default)
//	kan eval -model FILE [flags]   evaluate a saved float or int8 model
//	kan import -safetensors FILE -model FILE [-order K]
//	                               convert PyTorch KAN weights to a .born model
//	kan export -model FILE -safetensors FILE
//	kan config                     print the default configuration as YAML
//	kan version
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/kan/internal/train"
)

const version = "v0.1.0"

var (
	flagConfig      = flag.String("config", "", "YAML configuration file; flags below override it.")
	flagDataDir     = flag.String("data", "./data", "Directory with the MNIST IDX files (raw or .gz).")
	flagSynthetic   = flag.Int("synthetic", 0, "Train on this many synthetic samples instead of MNIST.")
	flagMaxSamples  = flag.Int("samples", 0, "Max samples to load per split (0 = all).")
	flagEpochs      = flag.Int("epochs", 15, "Number of training epochs.")
	flagBatchSize   = flag.Int("batch", 64, "Batch size for training.")
	flagLR          = flag.Float64("lr", 1e-3, "Initial learning rate.")
	flagGamma       = flag.Float64("gamma", 0.85, "Learning rate decay per epoch.")
	flagOutputDir   = flag.String("out", ".", "Directory for the saved models.")
	flagMetrics     = flag.String("metrics", "", "JSON lines file to log metrics to.")
	flagCheckpoints = flag.String("checkpoints", "", "Directory for per-epoch checkpoints; empty disables them.")
	flagHalf        = flag.Bool("half", false, "Save the float model in half precision.")
	flagSeed        = flag.Uint64("seed", 42, "Seed for initialization and shuffling.")
	flagModel       = flag.String("model", "", "Model file to evaluate (eval command).")
	flagNoProgress  = flag.Bool("no_progress", false, "Disable the progress bars.")
	flagSafeTensors = flag.String("safetensors", "", "SafeTensors file (import and export commands).")
	flagOrder       = flag.Int("order", 0, "Spline order of imported weights (0 = read it from the file).")
)

func main() {
	command := "train"
	if len(os.Args) > 1 && len(os.Args[1]) > 0 && os.Args[1][0] != '-' {
		command = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}
	klog.InitFlags(nil)
	flag.Parse()

	err := exceptions.TryCatch[error](func() {
		switch command {
		case "train":
			runTrain(buildConfig())
		case "eval":
			runEval(buildConfig(), *flagModel)
		case "import":
			runImport(buildConfig(), *flagSafeTensors, *flagModel, *flagOrder)
		case "export":
			runExport(*flagModel, *flagSafeTensors)
		case "config":
			fmt.Print(string(must.M1(yaml.Marshal(train.DefaultConfig()))))
		case "version":
			fmt.Printf("kan %s\n", version)
		default:
			exceptions.Panicf("unknown command %q: use train, eval, import, export, config or version", command)
		}
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

// buildConfig loads -config (or the defaults) and applies the flags set on the command line.
func buildConfig() train.Config {
	cfg := train.DefaultConfig()
	if *flagConfig != "" {
		cfg = must.M1(train.LoadConfig(*flagConfig))
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataDir = *flagDataDir
		case "synthetic":
			cfg.Synthetic = *flagSynthetic
		case "samples":
			cfg.MaxSamples = *flagMaxSamples
		case "epochs":
			cfg.Epochs = *flagEpochs
		case "batch":
			cfg.BatchSize = *flagBatchSize
		case "lr":
			cfg.LR = *flagLR
		case "gamma":
			cfg.Gamma = *flagGamma
		case "out":
			cfg.OutputDir = *flagOutputDir
		case "metrics":
			cfg.MetricsFile = *flagMetrics
		case "checkpoints":
			cfg.CheckpointDir = *flagCheckpoints
		case "half":
			cfg.HalfPrecision = *flagHalf
		case "seed":
			cfg.InitSeed, cfg.ShuffleSeed = *flagSeed, *flagSeed
		}
	})
	must.M(cfg.Validate())
	return cfg
}

func runTrain(cfg train.Config) {
	var summary *train.Summary
	if *flagNoProgress {
		summary = must.M1(train.Run(cfg, nil))
	} else {
		summary = must.M1(train.Run(cfg, os.Stderr))
	}
	printSummary(summary)
}
