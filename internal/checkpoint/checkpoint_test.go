package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/guregu/null.v3"

	"anticoag/internal/aggregate"
	"anticoag/internal/linker"
	"anticoag/internal/table"
)

func TestEventsCheckpoint(t *testing.T) {
	d := Dir{Path: filepath.Join(t.TempDir(), "ckpt")}
	events := []table.MedicationRecord{
		{
			RecordID:    1,
			SubjectID:   10,
			AdmissionID: null.IntFrom(100),
			DrugLabel:   null.StringFrom("Heparin Sodium"),
			StartDate:   null.StringFrom("2020-01-02 08:00:00"),
			Source:      "prescriptions",
		},
		{
			RecordID:  2,
			SubjectID: 11,
			DrugLabel: null.StringFrom("warfarin"),
			ChartTime: null.StringFrom("2020-01-03 00:00:00"),
			Source:    "inputevents_cv",
		},
	}

	if d.Exists(EventsFile) {
		t.Fatal("checkpoint should not exist yet")
	}
	if err := d.SaveEvents(events); err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}
	if !d.Exists(EventsFile) {
		t.Fatal("checkpoint not written")
	}

	got, err := d.LoadEvents()
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("loaded %d events, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i] != events[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], events[i])
		}
	}
	if got[1].AdmissionID.Valid || got[1].StartDate.Valid {
		t.Errorf("nulls not preserved: %+v", got[1])
	}
}

func TestAdmissionsCheckpoint(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	adm := []table.AdmissionRecord{
		{AdmissionID: 100, SubjectID: 10, AdmitTime: "2020-01-01 00:00:00"},
		{AdmissionID: 101, SubjectID: 10, AdmitTime: "2020-02-01 00:00:00", DeathTime: null.StringFrom("2020-02-03 00:00:00")},
	}
	if err := d.SaveAdmissions(adm, linker.UniqueSubjects(adm)); err != nil {
		t.Fatalf("SaveAdmissions: %v", err)
	}

	all, err := d.LoadAdmissions()
	if err != nil {
		t.Fatalf("LoadAdmissions: %v", err)
	}
	if len(all) != 2 || all[1] != adm[1] {
		t.Errorf("admissions = %+v", all)
	}

	unique, err := d.LoadUniqueAdmissions()
	if err != nil {
		t.Fatalf("LoadUniqueAdmissions: %v", err)
	}
	if len(unique) != 1 || unique[0].AdmissionID != 100 {
		t.Errorf("unique = %+v", unique)
	}
}

func TestLinkedCheckpoint(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	adm := table.AdmissionRecord{
		AdmissionID: 100,
		SubjectID:   10,
		AdmitTime:   "2020-01-01 00:00:00",
		DeathTime:   null.StringFrom("2020-01-09 00:00:00"),
	}
	linked := []linker.LinkedEvent{
		{
			Event:     table.MedicationRecord{RecordID: 1, SubjectID: 10, AdmissionID: null.IntFrom(100), Source: "prescriptions"},
			Admission: &adm,
		},
		{
			Event: table.MedicationRecord{RecordID: 2, SubjectID: 12, AdmissionID: null.IntFrom(999), Source: "prescriptions"},
		},
	}
	if err := d.SaveLinked(linked); err != nil {
		t.Fatalf("SaveLinked: %v", err)
	}

	got, err := d.LoadLinked()
	if err != nil {
		t.Fatalf("LoadLinked: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d, want 2", len(got))
	}
	if got[0].Admission == nil || *got[0].Admission != adm {
		t.Errorf("linked admission = %+v", got[0].Admission)
	}
	if got[1].Admission != nil {
		t.Errorf("unlinked event gained an admission: %+v", got[1].Admission)
	}
	if got[1].Event != linked[1].Event {
		t.Errorf("event = %+v", got[1].Event)
	}
}

func TestEarliestCheckpoint(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	earliest := []aggregate.EarliestEvent{
		{SubjectID: 1, Status: aggregate.Alive, DelayDays: 1.3333333333333333},
		{SubjectID: 2, Status: aggregate.Expired, DelayDays: -0.25},
	}
	if err := d.SaveEarliest(earliest); err != nil {
		t.Fatalf("SaveEarliest: %v", err)
	}
	got, err := d.LoadEarliest()
	if err != nil {
		t.Fatalf("LoadEarliest: %v", err)
	}
	if len(got) != 2 || got[0] != earliest[0] || got[1] != earliest[1] {
		t.Errorf("earliest = %+v", got)
	}
}

func TestEmptyCheckpoint(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	if err := d.SaveEarliest(nil); err != nil {
		t.Fatalf("SaveEarliest: %v", err)
	}
	got, err := d.LoadEarliest()
	if err != nil {
		t.Fatalf("LoadEarliest: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d rows, want 0", len(got))
	}
}

func TestLoadMissing(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	if _, err := d.LoadEvents(); err == nil {
		t.Fatal("expected error for missing checkpoint")
	}
}

func TestWriterCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.parquet")
	w, err := NewWriter[EarliestRow](path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]EarliestRow{{SubjectID: 1, Status: "Alive"}, {SubjectID: 2, Status: "Alive"}}); err != nil {
		t.Fatal(err)
	}
	if w.Count() != 2 {
		t.Errorf("count = %d, want 2", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("parquet file missing or empty: %v", err)
	}
}
