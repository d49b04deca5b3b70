// Package pipeline runs the anticoagulation analysis stages. Each stage
// reads the previous stage's checkpoint and writes its own, so any stage
// can be re-run on its own.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anticoag/internal/aggregate"
	"anticoag/internal/checkpoint"
	"anticoag/internal/cohort"
	"anticoag/internal/linker"
	"anticoag/internal/matcher"
	"anticoag/internal/metrics"
	"anticoag/internal/plot"
	"anticoag/internal/table"
)

// Source is one medication table and where to read it from.
type Source struct {
	Schema table.Schema
	Path   string
}

type Options struct {
	Sources        []Source
	AdmissionsPath string
	Vocabulary     matcher.Vocabulary
	Encoding       table.Encoding
	Checkpoints    checkpoint.Dir
	Aggregate      aggregate.Options
	Compare        cohort.Options
	Plot           plot.Sink // optional
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

type Pipeline struct {
	opts    Options
	runID   uuid.UUID
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New returns a pipeline with its own run id. Vocabulary and Metrics
// default when unset.
func New(opts Options) *Pipeline {
	if opts.Vocabulary == nil {
		opts.Vocabulary = matcher.DefaultVocabulary
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	runID := uuid.New()
	log := opts.Logger.With().Str("run_id", runID.String()).Logger()
	opts.Aggregate.Logger = log.With().Str("stage", "aggregate").Logger()

	return &Pipeline{
		opts:    opts,
		runID:   runID,
		log:     log,
		metrics: opts.Metrics,
	}
}

func (p *Pipeline) RunID() uuid.UUID { return p.runID }

func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

func (p *Pipeline) tableOptions() table.Options {
	return table.Options{Encoding: p.opts.Encoding}
}

// Match reads every source table, keeps the anticoagulation events and
// checkpoints them.
func (p *Pipeline) Match() (*matcher.Result, error) {
	start := time.Now()
	log := p.log.With().Str("stage", "match").Logger()
	log.Info().Int("sources", len(p.opts.Sources)).Int("stems", len(p.opts.Vocabulary)).Msg("stage started")

	tables := make([]*table.MedicationTable, 0, len(p.opts.Sources))
	for _, src := range p.opts.Sources {
		t, err := table.ReadMedications(src.Path, src.Schema, p.tableOptions())
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		log.Debug().Str("source", src.Schema.Name).Str("path", src.Path).Int("rows", len(t.Records)).Msg("source read")
		tables = append(tables, t)
	}

	res := matcher.Filter(p.opts.Vocabulary, tables)
	for _, st := range res.Sources {
		p.metrics.SourceRows(st.Source, st.Scanned, st.Skipped, st.Matched)
		log.Info().
			Str("source", st.Source).
			Int("scanned", st.Scanned).
			Int("skipped", st.Skipped).
			Int("matched", st.Matched).
			Msg("source filtered")
	}
	for _, e := range res.StemCounts.Sorted() {
		p.metrics.StemMatches(e.Key, e.Count)
		log.Info().Str("stem", e.Key).Int("count", e.Count).Msg("stem tally")
	}
	for _, e := range res.LabelCounts.Sorted() {
		log.Debug().Str("label", e.Key).Int("count", e.Count).Msg("label tally")
	}

	if err := p.opts.Checkpoints.SaveEvents(res.Events); err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}

	p.metrics.Stage("match", start)
	log.Info().Int("events", len(res.Events)).Dur("elapsed", time.Since(start)).Msg("stage finished")
	return res, nil
}

// Link joins checkpointed events to the deduplicated admissions.
func (p *Pipeline) Link() ([]linker.LinkedEvent, error) {
	start := time.Now()
	log := p.log.With().Str("stage", "link").Logger()
	log.Info().Str("admissions", p.opts.AdmissionsPath).Msg("stage started")

	events, err := p.opts.Checkpoints.LoadEvents()
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	raw, err := table.ReadAdmissions(p.opts.AdmissionsPath, p.tableOptions())
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}

	admissions := linker.DedupeAdmissions(raw)
	unique := linker.UniqueSubjects(admissions)
	log.Info().
		Int("rows", len(raw)).
		Int("admissions", len(admissions)).
		Int("patients", len(unique)).
		Msg("admissions deduplicated")
	if err := p.opts.Checkpoints.SaveAdmissions(admissions, unique); err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}

	linked := linker.Link(events, admissions)
	hits, misses := linker.Stats(linked)
	p.metrics.Linked(hits, misses)
	if err := p.opts.Checkpoints.SaveLinked(linked); err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}

	p.metrics.Stage("link", start)
	log.Info().Int("linked", hits).Int("unlinked", misses).Dur("elapsed", time.Since(start)).Msg("stage finished")
	return linked, nil
}

// Aggregate reduces linked events to one earliest event per patient.
func (p *Pipeline) Aggregate() (*aggregate.History, error) {
	start := time.Now()
	log := p.log.With().Str("stage", "aggregate").Logger()
	log.Info().Msg("stage started")

	linked, err := p.opts.Checkpoints.LoadLinked()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	h, err := aggregate.New(p.opts.Aggregate).Build(linked)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if err := p.opts.Checkpoints.SaveEarliest(h.Earliest()); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	p.metrics.Stage("aggregate", start)
	log.Info().
		Int("patients", h.Len()).
		Int("events", len(h.All())).
		Dur("elapsed", time.Since(start)).
		Msg("stage finished")
	return h, nil
}

// Analysis is the output of Compare.
type Analysis struct {
	Report   *cohort.Report
	Cohort   []table.AdmissionRecord
	Earliest []aggregate.EarliestEvent
}

// Compare runs both cohort analyses on the checkpointed earliest events
// and renders the delay plot when a sink is configured.
func (p *Pipeline) Compare() (*Analysis, error) {
	start := time.Now()
	log := p.log.With().Str("stage", "compare").Logger()
	log.Info().Str("ttest", string(p.opts.Compare.TTest)).Bool("yates", p.opts.Compare.Yates).Msg("stage started")

	unique, err := p.opts.Checkpoints.LoadUniqueAdmissions()
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	earliest, err := p.opts.Checkpoints.LoadEarliest()
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}

	report, err := cohort.Compare(unique, earliest, p.opts.Compare)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	if report.DelayErr != nil {
		log.Warn().Err(report.DelayErr).Msg("delay analysis skipped")
	}
	if report.ChiSquareErr != nil {
		log.Warn().Err(report.ChiSquareErr).Msg("association analysis skipped")
	}

	for _, c := range []struct {
		name string
		s    cohort.Survival
	}{
		{"anticoagulated", report.Anticoagulated},
		{"not_anticoagulated", report.NotAnticoagulated},
	} {
		p.metrics.Patients(c.name, string(aggregate.Alive), c.s.Alive)
		p.metrics.Patients(c.name, string(aggregate.Expired), c.s.Expired)
		ev := log.Info().Str("cohort", c.name).Int("alive", c.s.Alive).Int("expired", c.s.Expired)
		if r, err := c.s.AliveRatio(); err == nil {
			ev = ev.Float64("alive_ratio", r)
		}
		ev.Msg("survival")
	}

	if p.opts.Plot != nil {
		labels, delays := cohort.Series(earliest)
		if err := p.opts.Plot.Plot(labels, delays); err != nil {
			return nil, fmt.Errorf("compare: %w", err)
		}
	}

	p.metrics.Stage("compare", start)
	log.Info().
		Float64("t", report.Delay.Statistic).
		Float64("t_pvalue", report.Delay.PValue).
		Float64("chi2", report.ChiSquare.Statistic).
		Float64("chi2_pvalue", report.ChiSquare.PValue).
		Dur("elapsed", time.Since(start)).
		Msg("stage finished")

	return &Analysis{Report: report, Cohort: unique, Earliest: earliest}, nil
}

// Run executes every stage in order. Stages still exchange data through
// the checkpoint directory.
func (p *Pipeline) Run() (*Analysis, error) {
	if _, err := p.Match(); err != nil {
		return nil, err
	}
	if _, err := p.Link(); err != nil {
		return nil, err
	}
	if _, err := p.Aggregate(); err != nil {
		return nil, err
	}
	return p.Compare()
}
