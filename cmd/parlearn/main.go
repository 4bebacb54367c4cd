// Command parlearn trains a regularized linear classifier by batch
// gradient descent or parallel (Hogwild!) SGD, over a binary, ASCII, or
// SVMlight-style dataset file, and reports empirical risk and accuracy.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/stephentu/parlearn/dataset"
	"github.com/stephentu/parlearn/feature"
	"github.com/stephentu/parlearn/gd"
	"github.com/stephentu/parlearn/loss"
	"github.com/stephentu/parlearn/model"
	"github.com/stephentu/parlearn/sgd"
)

type report struct {
	Weights       []float64 `json:"weights,omitempty"`
	WeightNorm    float64   `json:"weight_norm"`
	EmpiricalRisk float64   `json:"empirical_risk"`
	GradNorm      float64   `json:"grad_norm"`
	TrainAccuracy float64   `json:"train_accuracy"`
	TestAccuracy  float64   `json:"test_accuracy"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("parlearn", flag.ContinueOnError)
	train := fs.String("train", "", "path to training data file (required)")
	test := fs.String("test", "", "path to test data file (required)")
	format := fs.String("train-format", "binary", "dataset format: binary, ascii, or svmlight")
	lambdaF := fs.Float64("lambda", 1e-3, "regularization strength, > 0")
	rounds := fs.Int("rounds", 10, "number of training epochs/rounds, >= 1")
	offset := fs.Uint64("offset", 0, "step-index offset added to every t_eff, >= 0")
	threads := fs.Int("threads", 1, "worker count, >= 1")
	lossName := fs.String("loss", "hinge", "loss function: hinge, square, ramp, or logistic")
	clf := fs.String("clf", "sgd-nolock", "classifier engine: gd, sgd-nolock, or sgd-lock")
	c0 := fs.Float64("c0", 1.0, "step-size numerator, > 0")
	verbose := fs.Bool("verbose", false, "log per-round progress to stderr")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *train == "" || *test == "" {
		log.Printf("[ERROR] both --train and --test are required")
		return 1
	}
	if *lambdaF <= 0 {
		log.Printf("[ERROR] --lambda must be > 0, got %v", *lambdaF)
		return 1
	}
	if *rounds < 1 {
		log.Printf("[ERROR] --rounds must be >= 1, got %d", *rounds)
		return 1
	}
	if *threads < 1 {
		log.Printf("[ERROR] --threads must be >= 1, got %d", *threads)
		return 1
	}
	lossFn, ok := loss.ByName(*lossName)
	if !ok {
		log.Printf("[ERROR] unknown --loss %q", *lossName)
		return 1
	}
	if *clf != "gd" && *clf != "sgd-nolock" && *clf != "sgd-lock" {
		log.Printf("[ERROR] unknown --clf %q", *clf)
		return 1
	}

	trainStorage, err := readDataset(*train, *format)
	if err != nil {
		log.Printf("[ERROR] reading --train: %v", err)
		return 1
	}
	testStorage, err := readDataset(*test, *format)
	if err != nil {
		log.Printf("[ERROR] reading --test: %v", err)
		return 1
	}
	log.Printf("[INFO] train_examples=%d train_dim=%d test_examples=%d", trainStorage.Len(), trainStorage.Dim(), testStorage.Len())

	dim := trainStorage.Dim()
	if testStorage.Dim() > dim {
		dim = testStorage.Dim()
	}
	m, err := model.New(dim, *lambdaF, lossFn, *threads)
	if err != nil {
		log.Printf("[ERROR] constructing model: %v", err)
		return 1
	}
	defer m.Shutdown()

	trainData := dataset.New(trainStorage)
	testData := dataset.New(testStorage)

	ctx := context.Background()
	if err := fitModel(ctx, *clf, m, trainData, *rounds, *threads, *offset, *c0, *verbose); err != nil {
		log.Printf("[ERROR] fit: %v", err)
		return 1
	}

	rep := report{
		WeightNorm:    vecNorm(m.W),
		EmpiricalRisk: m.EmpiricalRisk(trainData),
		GradNorm:      m.NormGradEmpiricalRisk(trainData),
		TrainAccuracy: accuracy(m, trainData),
		TestAccuracy:  accuracy(m, testData),
	}
	if dim <= 100 {
		rep.Weights = m.W
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Printf("[ERROR] encoding report: %v", err)
		return 1
	}
	return 0
}

func fitModel(ctx context.Context, clf string, m *model.Linear, d *dataset.Dataset, rounds, threads int, offset uint64, c0 float64, verbose bool) error {
	switch clf {
	case "gd":
		cfg, err := gd.NewConfig(rounds, gd.WithTOffset(offset), gd.WithC0(c0), gd.WithVerbose(verbose))
		if err != nil {
			return err
		}
		return gd.New(m, cfg).Fit(ctx, d, false)
	case "sgd-nolock", "sgd-lock":
		cfg, err := sgd.NewConfig(rounds, threads,
			sgd.WithLocking(clf == "sgd-lock"),
			sgd.WithTOffset(offset),
			sgd.WithC0(c0),
			sgd.WithVerbose(verbose))
		if err != nil {
			return err
		}
		return sgd.New(m, cfg).Fit(ctx, d, false)
	default:
		return fmt.Errorf("unknown clf %q", clf)
	}
}

func readDataset(path, format string) (*dataset.VectorStorage, error) {
	switch format {
	case "binary":
		return feature.ReadBinary(path)
	case "ascii":
		return feature.ReadASCII(path)
	case "svmlight":
		return feature.ReadSVMLight(path)
	default:
		return nil, fmt.Errorf("unknown --train-format %q", format)
	}
}

// accuracy reports the fraction of d's examples on which m's prediction
// matches the true label. Materialized storage never consults the scratch
// vector passed to At, so a nil scratch is safe here.
func accuracy(m *model.Linear, d *dataset.Dataset) float64 {
	if d.Len() == 0 {
		return 0
	}
	preds := m.Predict(d)
	correct := 0
	for i, p := range preds {
		if _, y := d.At(i, nil); p == y {
			correct++
		}
	}
	return float64(correct) / float64(len(preds))
}

func vecNorm(w []float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v * v
	}
	return math.Sqrt(sum)
}
