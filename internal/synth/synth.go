// Package synth generates a small synthetic admission cohort with
// medication events, shaped like the MIMIC-III extracts the pipeline
// reads.
package synth

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gopkg.in/guregu/null.v3"

	"anticoag/internal/table"
)

const layout = "2006-01-02 15:04:05"

var (
	anticoagLabels = []string{
		"Heparin Sodium", "Heparin", "HEPARIN (PORCINE)", "heparin flush",
		"Warfarin", "warfarin 5mg", "Coumadin (Warfarin)",
		"Apixaban", "Eliquis 5mg", "Xarelto", "Rivaroxaban 20mg", "Pradaxa",
	}
	otherLabels = []string{
		"Tylenol", "Acetaminophen", "Insulin", "Potassium Chloride", "NS",
		"Furosemide", "Metoprolol", "Pantoprazole", "Vancomycin", "D5W",
	}
)

// Options controls the shape of the generated cohort.
type Options struct {
	Seed             uint64
	Patients         int
	AnticoagFraction float64 // share of patients with at least one anticoagulant
	DeathRate        float64
	NoiseEvents      int // non-anticoagulant events per patient, at most
	Start            time.Time
	End              time.Time
}

// DefaultOptions returns a 500 patient cohort with a fixed seed.
func DefaultOptions() Options {
	return Options{
		Seed:             42,
		Patients:         500,
		AnticoagFraction: 0.4,
		DeathRate:        0.2,
		NoiseEvents:      3,
		Start:            time.Date(2101, 1, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2110, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Dataset is a generated cohort. Tables maps source name to its records.
type Dataset struct {
	Admissions []table.AdmissionRecord
	Tables     map[string][]table.MedicationRecord
}

type generator struct {
	f      *gofakeit.Faker
	opts   Options
	ds     *Dataset
	rowIDs map[string]int64
}

// Generate builds a deterministic dataset for opts.Seed.
func Generate(opts Options) *Dataset {
	g := &generator{
		f:      gofakeit.New(opts.Seed),
		opts:   opts,
		ds:     &Dataset{Tables: make(map[string][]table.MedicationRecord)},
		rowIDs: make(map[string]int64),
	}
	for i := 0; i < opts.Patients; i++ {
		g.patient(int64(10000+i), int64(100000+i*10))
	}
	return g.ds
}

func (g *generator) patient(subject, hadm int64) {
	f := g.f
	admit := f.DateRange(g.opts.Start, g.opts.End).Truncate(time.Second)
	expired := f.Float64Range(0, 1) < g.opts.DeathRate

	adm := table.AdmissionRecord{
		AdmissionID: hadm,
		SubjectID:   subject,
		AdmitTime:   admit.Format(layout),
	}
	if expired {
		death := admit.Add(time.Duration(f.Number(1, 30*24)) * time.Hour)
		adm.DeathTime = null.StringFrom(death.Format(layout))
	}
	g.ds.Admissions = append(g.ds.Admissions, adm)
	// extracts occasionally repeat an admission row
	if f.Number(1, 20) == 1 {
		g.ds.Admissions = append(g.ds.Admissions, adm)
	}

	// Some patients were readmitted; the later admission has its own id.
	if f.Number(1, 10) == 1 {
		re := table.AdmissionRecord{
			AdmissionID: hadm + 1,
			SubjectID:   subject,
			AdmitTime:   admit.AddDate(0, f.Number(2, 12), 0).Format(layout),
		}
		g.ds.Admissions = append(g.ds.Admissions, re)
	}

	if f.Float64Range(0, 1) < g.opts.AnticoagFraction {
		// patients who die tend to start anticoagulation later
		maxDelay := 5.0
		if expired {
			maxDelay = 9.0
		}
		for n := f.Number(1, 3); n > 0; n-- {
			delay := f.Float64Range(-0.5, maxDelay)
			g.event(subject, hadm, admit, delay, f.RandomString(anticoagLabels))
		}
	}
	for n := f.Number(0, g.opts.NoiseEvents); n > 0; n-- {
		g.event(subject, hadm, admit, f.Float64Range(0, 10), f.RandomString(otherLabels))
	}
}

func (g *generator) event(subject, hadm int64, admit time.Time, delayDays float64, label string) {
	sources := table.DefaultSources()
	schema := sources[g.f.Number(0, len(sources)-1)]
	at := admit.Add(time.Duration(delayDays * float64(24*time.Hour))).Truncate(time.Second)

	g.rowIDs[schema.Name]++
	rec := table.MedicationRecord{
		RecordID:    g.rowIDs[schema.Name],
		SubjectID:   subject,
		AdmissionID: null.IntFrom(hadm),
		DrugLabel:   null.StringFrom(label),
		Source:      schema.Name,
	}
	ts := null.StringFrom(at.Format(layout))
	switch schema.TimeColumns[0].Field {
	case table.StartDate:
		rec.StartDate = ts
	case table.ChartTime:
		rec.ChartTime = ts
	case table.StartTime:
		rec.StartTime = ts
	}
	g.ds.Tables[schema.Name] = append(g.ds.Tables[schema.Name], rec)
}

// Files names the four CSV files of a dataset.
type Files struct {
	Prescriptions string
	InputEventsCV string
	InputEventsMV string
	Admissions    string
}

func (fs Files) source(name string) string {
	switch name {
	case table.Prescriptions.Name:
		return fs.Prescriptions
	case table.InputEventsCV.Name:
		return fs.InputEventsCV
	case table.InputEventsMV.Name:
		return fs.InputEventsMV
	}
	return ""
}

// WriteCSV writes the dataset into dir using the column names of each
// source schema.
func (ds *Dataset) WriteCSV(dir string, files Files) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	for _, schema := range table.DefaultSources() {
		tc := schema.TimeColumns[0]
		header := []string{table.ColRowID, table.ColSubjectID, table.ColHadmID, tc.Column, schema.LabelColumn}
		recs := ds.Tables[schema.Name]
		rows := make([][]string, len(recs))
		for i := range recs {
			r := &recs[i]
			rows[i] = []string{
				strconv.FormatInt(r.RecordID, 10),
				strconv.FormatInt(r.SubjectID, 10),
				idString(r.AdmissionID),
				r.Time(tc.Field).ValueOrZero(),
				r.DrugLabel.ValueOrZero(),
			}
		}
		if err := writeTable(filepath.Join(dir, files.source(schema.Name)), header, rows); err != nil {
			return err
		}
	}

	header := []string{table.ColRowID, table.ColSubjectID, table.ColHadmID, table.ColAdmitTime, table.ColDeathTime}
	rows := make([][]string, len(ds.Admissions))
	for i, a := range ds.Admissions {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(a.SubjectID, 10),
			strconv.FormatInt(a.AdmissionID, 10),
			a.AdmitTime,
			a.DeathTime.ValueOrZero(),
		}
	}
	return writeTable(filepath.Join(dir, files.Admissions), header, rows)
}

func idString(id null.Int) string {
	if !id.Valid {
		return ""
	}
	return strconv.FormatInt(id.Int64, 10)
}

func writeTable(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(file)
	w.Write(header)
	w.WriteAll(rows)
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
