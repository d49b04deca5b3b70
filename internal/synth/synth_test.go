package synth

import (
	"path/filepath"
	"reflect"
	"testing"

	"anticoag/internal/matcher"
	"anticoag/internal/table"
)

func testFiles() Files {
	return Files{
		Prescriptions: "prescriptions.csv",
		InputEventsCV: "inputevents_cv.csv",
		InputEventsMV: "inputevents_mv.csv",
		Admissions:    "admissions.csv",
	}
}

func TestGenerateDeterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Patients = 50

	a := Generate(opts)
	b := Generate(opts)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different datasets")
	}

	opts.Seed++
	c := Generate(opts)
	if reflect.DeepEqual(a.Admissions, c.Admissions) {
		t.Error("different seeds produced identical admissions")
	}
}

func TestGenerateShape(t *testing.T) {
	opts := DefaultOptions()
	opts.Patients = 200
	ds := Generate(opts)

	subjects := map[int64]bool{}
	var expired int
	for _, a := range ds.Admissions {
		subjects[a.SubjectID] = true
		if a.DeathTime.Valid {
			expired++
		}
	}
	if len(subjects) != opts.Patients {
		t.Errorf("subjects = %d, want %d", len(subjects), opts.Patients)
	}
	if expired == 0 {
		t.Error("no expired admissions generated")
	}

	var matched int
	for _, recs := range ds.Tables {
		for _, r := range recs {
			if !subjects[r.SubjectID] {
				t.Fatalf("event for unknown subject %d", r.SubjectID)
			}
			if matcher.DefaultVocabulary.Matches(r.DrugLabel.String) {
				matched++
			}
		}
	}
	if matched == 0 {
		t.Error("no anticoagulant events generated")
	}
}

func TestWriteCSVReadsBack(t *testing.T) {
	opts := DefaultOptions()
	opts.Patients = 40
	ds := Generate(opts)

	dir := filepath.Join(t.TempDir(), "data")
	files := testFiles()
	if err := ds.WriteCSV(dir, files); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	adm, err := table.ReadAdmissions(filepath.Join(dir, files.Admissions), table.Options{})
	if err != nil {
		t.Fatalf("ReadAdmissions: %v", err)
	}
	if !reflect.DeepEqual(adm, ds.Admissions) {
		t.Error("admissions differ after round trip through CSV")
	}

	for _, schema := range table.DefaultSources() {
		tbl, err := table.ReadMedications(filepath.Join(dir, files.source(schema.Name)), schema, table.Options{})
		if err != nil {
			t.Fatalf("ReadMedications(%s): %v", schema.Name, err)
		}
		want := ds.Tables[schema.Name]
		if len(tbl.Records) != len(want) {
			t.Fatalf("%s: %d records, want %d", schema.Name, len(tbl.Records), len(want))
		}
		for i := range want {
			if tbl.Records[i] != want[i] {
				t.Errorf("%s[%d] = %+v, want %+v", schema.Name, i, tbl.Records[i], want[i])
				break
			}
		}
	}
}
