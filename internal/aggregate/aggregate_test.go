package aggregate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v3"

	"anticoag/internal/linker"
	"anticoag/internal/table"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func linked(subj int64, eventTime string, field table.TimeField, admit string, death string) linker.LinkedEvent {
	ev := table.MedicationRecord{RecordID: subj*100 + 1, SubjectID: subj, AdmissionID: null.IntFrom(subj)}
	switch field {
	case table.StartDate:
		ev.StartDate = null.NewString(eventTime, eventTime != "")
	case table.ChartTime:
		ev.ChartTime = null.NewString(eventTime, eventTime != "")
	case table.StartTime:
		ev.StartTime = null.NewString(eventTime, eventTime != "")
	}
	return linker.LinkedEvent{
		Event: ev,
		Admission: &table.AdmissionRecord{
			AdmissionID: subj,
			SubjectID:   subj,
			AdmitTime:   admit,
			DeathTime:   null.NewString(death, death != ""),
		},
	}
}

func TestDelayDays(t *testing.T) {
	admit := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	event := time.Date(2020, 1, 2, 8, 0, 0, 0, time.UTC)
	if got, want := DelayDays(event, admit), 32.0/24.0; !approxEqual(got, want) {
		t.Errorf("DelayDays = %v, want %v", got, want)
	}
	// Events before admission are kept negative.
	if got := DelayDays(admit, event); !approxEqual(got, -32.0/24.0) {
		t.Errorf("negative DelayDays = %v", got)
	}
	if got := DelayDays(admit.Add(36*time.Second), admit); !approxEqual(got, 36.0/86400.0) {
		t.Errorf("DelayDays seconds = %v", got)
	}
}

func TestEventTimePriority(t *testing.T) {
	rec := table.MedicationRecord{
		ChartTime: null.StringFrom("2020-01-02 00:00:00"),
		StartTime: null.StringFrom("2020-01-03 00:00:00"),
	}
	f, v, ok := EventTime(&rec)
	if !ok || f != table.ChartTime || v != "2020-01-02 00:00:00" {
		t.Errorf("EventTime = (%v, %q, %v), want CHARTTIME", f, v, ok)
	}

	rec.StartDate = null.StringFrom("2020-01-01 00:00:00")
	if f, _, _ := EventTime(&rec); f != table.StartDate {
		t.Errorf("STARTDATE should win, got %v", f)
	}

	if _, _, ok := EventTime(&table.MedicationRecord{}); ok {
		t.Error("record without timestamps should report !ok")
	}
}

func TestObserveExample(t *testing.T) {
	a := New(Options{})
	le := linked(1, "2020-01-02 08:00:00", table.StartDate, "2020-01-01 00:00:00", "")

	obs, err := a.Observe(&le)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs.Status != Alive {
		t.Errorf("status = %s, want Alive", obs.Status)
	}
	if math.Abs(obs.DelayDays-1.333) > 0.001 {
		t.Errorf("delay = %v, want ~1.333", obs.DelayDays)
	}

	le = linked(2, "2020-01-02 08:00:00", table.StartTime, "2020-01-01 00:00:00", "2020-01-05 00:00:00")
	obs, err = a.Observe(&le)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs.Status != Expired {
		t.Errorf("status = %s, want Expired", obs.Status)
	}
}

func TestObserveErrors(t *testing.T) {
	a := New(Options{})

	untimed := linked(1, "", table.StartDate, "2020-01-01 00:00:00", "")
	if _, err := a.Observe(&untimed); !errors.Is(err, ErrNoEventTime) {
		t.Errorf("untimed err = %v, want ErrNoEventTime", err)
	}

	unlinked := linked(2, "2020-01-02 00:00:00", table.StartDate, "", "")
	unlinked.Admission = nil
	if _, err := a.Observe(&unlinked); !errors.Is(err, ErrNoAdmission) {
		t.Errorf("unlinked err = %v, want ErrNoAdmission", err)
	}

	badFormat := linked(3, "01/02/2020 08:00", table.ChartTime, "2020-01-01 00:00:00", "")
	if _, err := a.Observe(&badFormat); !errors.Is(err, ErrTimeFormat) {
		t.Errorf("bad event format err = %v, want ErrTimeFormat", err)
	}

	badAdmit := linked(4, "2020-01-02 00:00:00", table.ChartTime, "2020-01-01", "")
	if _, err := a.Observe(&badAdmit); !errors.Is(err, ErrTimeFormat) {
		t.Errorf("bad admit format err = %v, want ErrTimeFormat", err)
	}
}

func TestBuildFailsOnUntimed(t *testing.T) {
	events := []linker.LinkedEvent{
		linked(1, "2020-01-02 00:00:00", table.StartDate, "2020-01-01 00:00:00", ""),
		linked(2, "", table.StartDate, "2020-01-01 00:00:00", ""),
	}

	if _, err := New(Options{}).Build(events); !errors.Is(err, ErrNoEventTime) {
		t.Fatalf("err = %v, want ErrNoEventTime", err)
	}

	h, err := New(Options{SkipUntimed: true, Logger: zerolog.Nop()}).Build(events)
	if err != nil {
		t.Fatalf("Build with SkipUntimed: %v", err)
	}
	if h.Len() != 1 || !h.Has(1) || h.Has(2) {
		t.Errorf("history subjects = %v", h.Subjects())
	}
}

func TestBuildSkipDoesNotHideParseErrors(t *testing.T) {
	events := []linker.LinkedEvent{
		linked(1, "garbage", table.StartDate, "2020-01-01 00:00:00", ""),
	}
	if _, err := New(Options{SkipUntimed: true, Logger: zerolog.Nop()}).Build(events); !errors.Is(err, ErrTimeFormat) {
		t.Fatalf("err = %v, want ErrTimeFormat", err)
	}
}

func TestEarliestKeepsFirstStatusAndMinDelay(t *testing.T) {
	h := NewHistory()
	// Out of order: the first-inserted event has the larger delay and a
	// different status than the minimum-delay event.
	h.Add(7, Observation{Status: Alive, DelayDays: 3.5})
	h.Add(8, Observation{Status: Expired, DelayDays: 0.5})
	h.Add(7, Observation{Status: Expired, DelayDays: -0.25})
	h.Add(7, Observation{Status: Expired, DelayDays: 1})

	ee := h.Earliest()
	if len(ee) != 2 {
		t.Fatalf("earliest = %d patients, want 2", len(ee))
	}
	if ee[0].SubjectID != 7 || ee[1].SubjectID != 8 {
		t.Errorf("order = [%d %d], want [7 8]", ee[0].SubjectID, ee[1].SubjectID)
	}
	if ee[0].Status != Alive {
		t.Errorf("status = %s, want Alive (first inserted)", ee[0].Status)
	}
	if ee[0].DelayDays != -0.25 {
		t.Errorf("delay = %v, want -0.25 (minimum)", ee[0].DelayDays)
	}
	if len(h.All()) != 4 {
		t.Errorf("all = %d, want 4", len(h.All()))
	}
	if len(h.Events(7)) != 3 {
		t.Errorf("events(7) = %d, want 3", len(h.Events(7)))
	}
}

func TestEarliestMatchesMinimum(t *testing.T) {
	h := NewHistory()
	delays := []float64{4, 2.5, 9, 2.25, 7}
	for _, d := range delays {
		h.Add(1, Observation{Status: Alive, DelayDays: d})
	}
	lowest := delays[0]
	for _, d := range delays {
		if d < lowest {
			lowest = d
		}
	}
	if got := h.Earliest()[0].DelayDays; got != lowest {
		t.Errorf("earliest delay = %v, want %v", got, lowest)
	}
}

func TestCustomLayout(t *testing.T) {
	a := New(Options{Layout: "2006-01-02T15:04:05"})
	le := linked(1, "2020-01-03T00:00:00", table.StartDate, "2020-01-01T00:00:00", "")
	obs, err := a.Observe(&le)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if !approxEqual(obs.DelayDays, 2) {
		t.Errorf("delay = %v, want 2", obs.DelayDays)
	}
}
