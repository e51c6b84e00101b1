package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thebtf/tasteid/internal/config"
	"github.com/thebtf/tasteid/internal/signature"
	"github.com/thebtf/tasteid/internal/tasteid"
	"github.com/thebtf/tasteid/pkg/models"
)

var validate = validator.New()

type computeOptions struct {
	eventsPath   string
	priorPath    string
	outPath      string
	settingsPath string
	preview      bool
}

// eventFile is the accepted shape of an events file when it is an object.
type eventFile struct {
	Ratings []models.RatingEvent `json:"ratings" validate:"unique=ID,dive"`
}

// ComputeOutput is what compute prints.
type ComputeOutput struct {
	tasteid.PreviewResult
	Patterns          []*models.Pattern          `json:"patterns"`
	Tastes            []models.ConsolidatedTaste `json:"tastes"`
	Alerts            []models.DriftAlert        `json:"alerts"`
	SignificantDrifts []models.DriftAlert        `json:"significant_drifts"`
	ColdStarts        []string                   `json:"cold_starts,omitempty"`
	EpisodeStats      models.EpisodeStats        `json:"episode_stats"`
	EventCount        int                        `json:"event_count"`
}

func newComputeCmd(logger func() zerolog.Logger) *cobra.Command {
	opts := &computeOptions{}

	computeCmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute a taste profile from an events file",
		Long: `Compute reads a JSON file of rating events (an array, or an object with a
"ratings" array) and prints the signature, patterns, tastes and drift alerts.
Pass the snapshot written by a previous run with --prior to resume learning
from it, and --out to write the new snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(cmd, opts, logger())
		},
	}

	computeCmd.Flags().StringVarP(&opts.eventsPath, "events", "e", "", "Path to the rating events JSON file")
	computeCmd.Flags().StringVarP(&opts.priorPath, "prior", "p", "", "Path to a snapshot from a previous run")
	computeCmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "Write the new snapshot to this path")
	computeCmd.Flags().StringVar(&opts.settingsPath, "settings", "", "Settings file with engine thresholds (default: built-in defaults)")
	computeCmd.Flags().BoolVar(&opts.preview, "preview", false, "Compute only the signature; accepts a single event")
	_ = computeCmd.MarkFlagRequired("events")

	return computeCmd
}

func runCompute(cmd *cobra.Command, opts *computeOptions, logger zerolog.Logger) error {
	engineConfig := tasteid.DefaultConfig()
	if opts.settingsPath != "" {
		cfg, err := config.LoadFrom(opts.settingsPath)
		if err != nil {
			return err
		}
		engineConfig = cfg.Engine
	}

	events, err := readEvents(opts.eventsPath)
	if err != nil {
		return err
	}

	engine := tasteid.NewEngine(engineConfig, nil, logger)
	out := cmd.OutOrStdout()

	if opts.preview {
		result, err := engine.Preview(events)
		if err != nil {
			return err
		}
		return writeOutput(out, signatureView(result))
	}

	var prior *models.Snapshot
	if opts.priorPath != "" {
		prior, err = readSnapshot(opts.priorPath)
		if err != nil {
			return err
		}
	}

	result, err := engine.Compute(events, prior)
	if err != nil {
		return err
	}

	if opts.outPath != "" {
		data, err := json.Marshal(result.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if err := os.WriteFile(opts.outPath, data, 0600); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	return writeOutput(out, ComputeOutput{
		PreviewResult:     signatureView(result.Signature),
		Patterns:          emptyIfNil(result.Patterns),
		Tastes:            emptyIfNil(result.Tastes),
		Alerts:            emptyIfNil(result.Alerts),
		SignificantDrifts: emptyIfNil(result.SignificantDrifts),
		ColdStarts:        result.ColdStarts,
		EpisodeStats:      result.EpisodeStats,
		EventCount:        result.EventCount,
	})
}

// readEvents loads and validates an events file.
func readEvents(path string) ([]models.RatingEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	var file eventFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &file.Ratings)
	} else {
		err = json.Unmarshal(trimmed, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("parse events %s: %w", path, err)
	}

	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid events in %s: %w", path, err)
	}
	return file.Ratings, nil
}

func readSnapshot(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &snapshot, nil
}

func writeOutput(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func signatureView(result *signature.Result) tasteid.PreviewResult {
	return tasteid.PreviewResult{
		Archetype:   result.Archetype,
		Stats:       result.Stats,
		RatingStyle: result.RatingStyle,
		Signature:   result.Signature,
	}
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
