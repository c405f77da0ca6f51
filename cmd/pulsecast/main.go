// Command pulsecast trains, evaluates and serves forecasts for the
// open-source project health model from a SQLite dataset.
//
//	pulsecast train    -config config.yaml
//	pulsecast evaluate -config config.yaml [-checkpoint path]
//	pulsecast predict  -config config.yaml -project id [-checkpoint path]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pulsecast/pulsecast"
	"github.com/pulsecast/pulsecast/adapters"
	"github.com/pulsecast/pulsecast/dataset"
	"github.com/pulsecast/pulsecast/model"
)

// FileConfig is the YAML surface of the CLI. Zero values defer to the
// library defaults.
type FileConfig struct {
	DBPath        string `yaml:"db_path"`
	CachePath     string `yaml:"embedding_cache_path"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	ReportPath    string `yaml:"report_path"`

	// Provider selects the pretrained text model: "voyage" or "openai".
	Provider string `yaml:"embedding_provider"`

	Window       int `yaml:"window"`
	Horizon      int `yaml:"horizon"`
	TextLookback int `yaml:"text_lookback"`

	TargetFeatures []int     `yaml:"target_features"`
	TargetWeights  []float64 `yaml:"target_weights"`

	EncoderDim int `yaml:"encoder_dim"`
	FusionDim  int `yaml:"fusion_dim"`

	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	Patience     int     `yaml:"patience"`
	LearningRate float64 `yaml:"learning_rate"`

	TrainFrac float64 `yaml:"train_frac"`
	ValFrac   float64 `yaml:"val_frac"`
	TestFrac  float64 `yaml:"test_frac"`

	Seed int64 `yaml:"seed"`
}

func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if fc.DBPath == "" {
		return nil, fmt.Errorf("config %s: db_path is required", path)
	}
	if fc.Provider == "" {
		fc.Provider = "voyage"
	}
	if fc.CheckpointDir == "" {
		fc.CheckpointDir = "./checkpoints"
	}
	if fc.CachePath == "" {
		fc.CachePath = filepath.Join(filepath.Dir(fc.DBPath), "embeddings.db")
	}
	return &fc, nil
}

// embeddingBackend describes a wired provider.
type embeddingBackend struct {
	client model.EmbeddingClient
	model  string
	dim    int
	close  func() error
}

func buildEmbedding(fc *FileConfig) (*embeddingBackend, error) {
	var inner model.EmbeddingClient
	var modelID string
	var dim int
	switch fc.Provider {
	case "voyage":
		a, err := adapters.NewVoyageEmbeddingAdapter(nil)
		if err != nil {
			return nil, err
		}
		inner, modelID, dim = a, a.Model(), a.Dimensions()
	case "openai":
		a, err := adapters.NewOpenAIEmbeddingAdapter(nil)
		if err != nil {
			return nil, err
		}
		inner, modelID, dim = a, a.Model(), a.Dimensions()
	default:
		return nil, fmt.Errorf("unknown embedding_provider %q (use voyage or openai)", fc.Provider)
	}

	cached, err := adapters.NewCachedEmbeddingClient(inner, modelID, fc.CachePath)
	if err != nil {
		return nil, err
	}
	return &embeddingBackend{client: cached, model: modelID, dim: dim, close: cached.Close}, nil
}

func buildPipeline(fc *FileConfig, log *zap.SugaredLogger) (*pulsecast.Pipeline, func(), error) {
	store, err := dataset.OpenStore(fc.DBPath)
	if err != nil {
		return nil, nil, err
	}
	backend, err := buildEmbedding(fc)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	cleanup := func() {
		backend.close()
		store.Close()
	}

	pipe, err := pulsecast.NewPipeline(pulsecast.Config{
		Store:           store,
		EmbeddingClient: backend.client,
		EmbeddingModel:  backend.model,
		EmbeddingDim:    backend.dim,
		Logger:          log,
		Window:          fc.Window,
		Horizon:         fc.Horizon,
		TextLookback:    fc.TextLookback,
		TargetFeatures:  fc.TargetFeatures,
		TargetWeights:   fc.TargetWeights,
		EncoderDim:      fc.EncoderDim,
		FusionDim:       fc.FusionDim,
		BatchSize:       fc.BatchSize,
		Epochs:          fc.Epochs,
		Patience:        fc.Patience,
		LearningRate:    fc.LearningRate,
		TrainFrac:       fc.TrainFrac,
		ValFrac:         fc.ValFrac,
		TestFrac:        fc.TestFrac,
		Seed:            fc.Seed,
		CheckpointDir:   fc.CheckpointDir,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return pipe, cleanup, nil
}

func writeReport(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: pulsecast <train|evaluate|predict> [flags]")
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML config")
	checkpoint := fs.String("checkpoint", "", "checkpoint path (default: best of checkpoint_dir)")
	project := fs.String("project", "", "project id (predict only)")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.Parse(os.Args[2:])

	// API keys may live in a .env next to the binary; absence is fine when
	// the environment already carries them.
	_ = godotenv.Load()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	fc, err := loadFileConfig(*configPath)
	if err != nil {
		log.Fatalw("config", "error", err)
	}
	if *checkpoint == "" {
		*checkpoint = filepath.Join(fc.CheckpointDir, "best.json")
	}

	pipe, cleanup, err := buildPipeline(fc, log)
	if err != nil {
		log.Fatalw("setup", "error", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch command {
	case "train":
		result, report, err := pipe.Train(ctx)
		if err != nil {
			log.Fatalw("train", "error", err)
		}
		log.Infow("run complete",
			"run_id", result.RunID,
			"best_epoch", result.BestEpoch,
			"best_val_loss", result.BestValLoss,
			"checkpoint", result.BestPath,
		)
		if err := writeReport(fc.ReportPath, report); err != nil {
			log.Fatalw("write report", "error", err)
		}
	case "evaluate":
		report, err := pipe.Evaluate(ctx, *checkpoint)
		if err != nil {
			log.Fatalw("evaluate", "error", err)
		}
		if err := writeReport(fc.ReportPath, report); err != nil {
			log.Fatalw("write report", "error", err)
		}
	case "predict":
		if *project == "" {
			log.Fatal("predict requires -project")
		}
		forecast, err := pipe.Predict(ctx, *checkpoint, *project)
		if err != nil {
			log.Fatalw("predict", "error", err)
		}
		out := struct {
			ProjectID   string      `json:"project_id"`
			AnchorMonth string      `json:"anchor_month"`
			Months      []string    `json:"months"`
			Values      [][]float64 `json:"values"`
		}{
			ProjectID:   forecast.ProjectID,
			AnchorMonth: forecast.AnchorMonth.String(),
			Values:      forecast.Values,
		}
		for _, m := range forecast.Months {
			out.Months = append(out.Months, m.String())
		}
		if err := writeReport("", out); err != nil {
			log.Fatalw("write forecast", "error", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
}
