package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"anticoag/internal/aggregate"
	"anticoag/internal/checkpoint"
	"anticoag/internal/cohort"
	"anticoag/internal/config"
	"anticoag/internal/matcher"
	"anticoag/internal/pipeline"
	"anticoag/internal/plot"
	"anticoag/internal/store"
	"anticoag/internal/synth"
	"anticoag/internal/table"
)

type cli struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func main() {
	c := &cli{log: zerolog.New(os.Stderr).With().Timestamp().Logger()}

	rootCmd := &cobra.Command{
		Use:           "anticoag",
		Short:         "Anticoagulation timing and survival analysis on MIMIC-III extracts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(c.matchCmd())
	rootCmd.AddCommand(c.linkCmd())
	rootCmd.AddCommand(c.aggregateCmd())
	rootCmd.AddCommand(c.compareCmd())
	rootCmd.AddCommand(c.runCmd())
	rootCmd.AddCommand(c.storeCmd())
	rootCmd.AddCommand(c.synthCmd())

	if err := rootCmd.Execute(); err != nil {
		c.log.Error().Err(err).Msg("anticoag failed")
		os.Exit(1)
	}
}

func (c *cli) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	c.log = logger.Level(level)
	return nil
}

func (c *cli) pipeline() (*pipeline.Pipeline, error) {
	cfg := c.cfg

	vocab := matcher.DefaultVocabulary
	if cfg.VocabularyFile != "" {
		v, err := matcher.LoadVocabulary(cfg.VocabularyFile)
		if err != nil {
			return nil, err
		}
		vocab = v
	}

	paths := map[string]string{
		table.Prescriptions.Name: cfg.PrescriptionsFile,
		table.InputEventsCV.Name: cfg.InputEventsCVFile,
		table.InputEventsMV.Name: cfg.InputEventsMVFile,
	}
	var sources []pipeline.Source
	for _, s := range table.DefaultSources() {
		sources = append(sources, pipeline.Source{Schema: s, Path: cfg.DataPath(paths[s.Name])})
	}

	opts := pipeline.Options{
		Sources:        sources,
		AdmissionsPath: cfg.DataPath(cfg.AdmissionsFile),
		Vocabulary:     vocab,
		Encoding:       table.Encoding(cfg.InputEncoding),
		Checkpoints:    checkpoint.Dir{Path: cfg.CheckpointDir},
		Aggregate: aggregate.Options{
			Layout:      cfg.TimeLayout,
			SkipUntimed: cfg.SkipUntimed,
		},
		Compare: cohort.Options{
			TTest: cohort.TTestMode(cfg.TTestMode),
			Yates: cfg.YatesCorrection,
		},
		Logger: c.log,
	}
	if cfg.PlotFile != "" {
		opts.Plot = plot.NewBoxPlotter(cfg.PlotFile)
	}
	return pipeline.New(opts), nil
}

// stage wraps one pipeline step as a subcommand and writes metrics after
// it succeeds.
func (c *cli) stage(use, short string, fn func(p *pipeline.Pipeline) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.pipeline()
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
			return c.writeMetrics(p)
		},
	}
}

func (c *cli) writeMetrics(p *pipeline.Pipeline) error {
	if c.cfg.MetricsFile == "" {
		return nil
	}
	return p.Metrics().WriteTextfile(c.cfg.MetricsFile)
}

func (c *cli) matchCmd() *cobra.Command {
	return c.stage("match", "Filter medication tables down to anticoagulation events", func(p *pipeline.Pipeline) error {
		res, err := p.Match()
		if err != nil {
			return err
		}
		fmt.Println("Matches per stem:")
		for _, e := range res.StemCounts.Sorted() {
			fmt.Printf("  %-14s %d\n", e.Key, e.Count)
		}
		fmt.Println("Matches per label:")
		for _, e := range res.LabelCounts.Sorted() {
			fmt.Printf("  %-40s %d\n", e.Key, e.Count)
		}
		return nil
	})
}

func (c *cli) linkCmd() *cobra.Command {
	return c.stage("link", "Join anticoagulation events to their admissions", func(p *pipeline.Pipeline) error {
		_, err := p.Link()
		return err
	})
}

func (c *cli) aggregateCmd() *cobra.Command {
	return c.stage("aggregate", "Compute each patient's earliest anticoagulation delay", func(p *pipeline.Pipeline) error {
		_, err := p.Aggregate()
		return err
	})
}

func (c *cli) compareCmd() *cobra.Command {
	return c.stage("compare", "Compare delays by outcome and test anticoagulation against survival", func(p *pipeline.Pipeline) error {
		an, err := p.Compare()
		if err != nil {
			return err
		}
		return an.Report.WriteText(os.Stdout)
	})
}

func (c *cli) runCmd() *cobra.Command {
	return c.stage("run", "Run every stage", func(p *pipeline.Pipeline) error {
		an, err := p.Run()
		if err != nil {
			return err
		}
		if err := an.Report.WriteText(os.Stdout); err != nil {
			return err
		}
		if c.cfg.DatabaseURL == "" {
			return nil
		}
		return c.save(p, an, false)
	})
}

func (c *cli) storeCmd() *cobra.Command {
	var initSchema bool
	cmd := c.stage("store", "Save the analysis of the current checkpoints to PostgreSQL", func(p *pipeline.Pipeline) error {
		if c.cfg.DatabaseURL == "" {
			return fmt.Errorf("database_url is required")
		}
		an, err := p.Compare()
		if err != nil {
			return err
		}
		return c.save(p, an, initSchema)
	})
	cmd.Flags().BoolVar(&initSchema, "init", false, "Create result tables before saving")
	return cmd
}

func (c *cli) save(p *pipeline.Pipeline, an *pipeline.Analysis, initSchema bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s, err := store.Open(ctx, c.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	if initSchema {
		if err := s.InitSchema(ctx); err != nil {
			return err
		}
	}
	if err := s.SaveRun(ctx, p.RunID(), an.Report, an.Earliest); err != nil {
		return err
	}
	c.log.Info().Str("run_id", p.RunID().String()).Int("earliest", len(an.Earliest)).Msg("results saved")
	return nil
}

func (c *cli) synthCmd() *cobra.Command {
	opts := synth.DefaultOptions()
	var outDir string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic cohort in the source CSV layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := outDir
			if dir == "" {
				dir = c.cfg.DataDir
			}
			ds := synth.Generate(opts)
			files := synth.Files{
				Prescriptions: filepath.Base(c.cfg.PrescriptionsFile),
				InputEventsCV: filepath.Base(c.cfg.InputEventsCVFile),
				InputEventsMV: filepath.Base(c.cfg.InputEventsMVFile),
				Admissions:    filepath.Base(c.cfg.AdmissionsFile),
			}
			if err := ds.WriteCSV(dir, files); err != nil {
				return err
			}
			c.log.Info().
				Str("dir", dir).
				Int("patients", opts.Patients).
				Int("admissions", len(ds.Admissions)).
				Uint64("seed", opts.Seed).
				Msg("synthetic cohort written")
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default data_dir)")
	cmd.Flags().IntVar(&opts.Patients, "patients", opts.Patients, "Number of patients")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	cmd.Flags().Float64Var(&opts.AnticoagFraction, "anticoag-fraction", opts.AnticoagFraction, "Share of patients receiving anticoagulants")
	cmd.Flags().Float64Var(&opts.DeathRate, "death-rate", opts.DeathRate, "Share of patients who die in hospital")
	return cmd
}
