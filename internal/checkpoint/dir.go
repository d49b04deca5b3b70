package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"anticoag/internal/aggregate"
	"anticoag/internal/linker"
	"anticoag/internal/table"
)

// Checkpoint file names inside a Dir.
const (
	EventsFile           = "events.parquet"
	AdmissionsFile       = "admissions.parquet"
	UniqueAdmissionsFile = "admissions_unique.parquet"
	LinkedFile           = "linked.parquet"
	EarliestFile         = "earliest.parquet"
)

// Dir is a directory of stage checkpoints.
type Dir struct {
	Path string
}

func (d Dir) file(name string) string {
	return filepath.Join(d.Path, name)
}

func (d Dir) ensure() error {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	return nil
}

// Exists reports whether the named checkpoint has been written.
func (d Dir) Exists(name string) bool {
	_, err := os.Stat(d.file(name))
	return err == nil
}

func save[S, T any](d Dir, name string, in []S, conv func(*S) T) error {
	if err := d.ensure(); err != nil {
		return err
	}
	rows := make([]T, len(in))
	for i := range in {
		rows[i] = conv(&in[i])
	}
	if err := WriteFile(d.file(name), rows); err != nil {
		return fmt.Errorf("checkpoint %s: %w", name, err)
	}
	return nil
}

func load[T, S any](d Dir, name string, conv func(*T) S) ([]S, error) {
	rows, err := ReadFile[T](d.file(name))
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", name, err)
	}
	out := make([]S, len(rows))
	for i := range rows {
		out[i] = conv(&rows[i])
	}
	return out, nil
}

func (d Dir) SaveEvents(events []table.MedicationRecord) error {
	return save(d, EventsFile, events, EventRowOf)
}

func (d Dir) LoadEvents() ([]table.MedicationRecord, error) {
	return load(d, EventsFile, (*EventRow).Record)
}

// SaveAdmissions writes the deduplicated admissions and the one-row-per-
// patient cohort.
func (d Dir) SaveAdmissions(admissions, unique []table.AdmissionRecord) error {
	if err := save(d, AdmissionsFile, admissions, AdmissionRowOf); err != nil {
		return err
	}
	return save(d, UniqueAdmissionsFile, unique, AdmissionRowOf)
}

func (d Dir) LoadAdmissions() ([]table.AdmissionRecord, error) {
	return load(d, AdmissionsFile, (*AdmissionRow).Record)
}

func (d Dir) LoadUniqueAdmissions() ([]table.AdmissionRecord, error) {
	return load(d, UniqueAdmissionsFile, (*AdmissionRow).Record)
}

func (d Dir) SaveLinked(linked []linker.LinkedEvent) error {
	return save(d, LinkedFile, linked, LinkedRowOf)
}

func (d Dir) LoadLinked() ([]linker.LinkedEvent, error) {
	return load(d, LinkedFile, (*LinkedRow).Linked)
}

func (d Dir) SaveEarliest(earliest []aggregate.EarliestEvent) error {
	return save(d, EarliestFile, earliest, func(e *aggregate.EarliestEvent) EarliestRow {
		return EarliestRowOf(*e)
	})
}

func (d Dir) LoadEarliest() ([]aggregate.EarliestEvent, error) {
	return load(d, EarliestFile, (*EarliestRow).Event)
}
