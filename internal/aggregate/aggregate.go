// Package aggregate turns linked anticoagulation events into per-patient
// delays from admission.
package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v3"

	"anticoag/internal/linker"
	"anticoag/internal/table"
)

// DefaultLayout is the timestamp format of every source table.
const DefaultLayout = "2006-01-02 15:04:05"

var (
	ErrNoEventTime = errors.New("no valid event timestamp for record")
	ErrNoAdmission = errors.New("no admission time for record")
	ErrTimeFormat  = errors.New("timestamp does not match layout")
)

// Status is a patient's survival outcome.
type Status string

const (
	Alive   Status = "Alive"
	Expired Status = "Expired"
)

// StatusOf derives survival from the presence of a death timestamp.
func StatusOf(deathTime null.String) Status {
	if deathTime.Valid {
		return Expired
	}
	return Alive
}

// eventTimePriority is the order in which timestamp candidates are tried.
var eventTimePriority = []table.TimeField{table.StartDate, table.ChartTime, table.StartTime}

// EventTime returns the first populated timestamp candidate of rec.
func EventTime(rec *table.MedicationRecord) (table.TimeField, string, bool) {
	for _, f := range eventTimePriority {
		if v := rec.Time(f); v.Valid {
			return f, v.String, true
		}
	}
	return 0, "", false
}

// DelayDays is the signed elapsed time from admit to event in fractional
// days. Events recorded before admission give negative delays.
func DelayDays(event, admit time.Time) float64 {
	return float64(event.Sub(admit)) / float64(24*time.Hour)
}

// Options configures an Aggregator.
type Options struct {
	// Layout is the timestamp layout; DefaultLayout when empty.
	Layout string
	// SkipUntimed drops records with no event timestamp instead of
	// failing the run.
	SkipUntimed bool
	Logger      zerolog.Logger
}

// Aggregator builds patient event histories.
type Aggregator struct {
	layout      string
	skipUntimed bool
	log         zerolog.Logger
}

// New returns an Aggregator for opts, defaulting the timestamp layout.
func New(opts Options) *Aggregator {
	layout := opts.Layout
	if layout == "" {
		layout = DefaultLayout
	}
	return &Aggregator{
		layout:      layout,
		skipUntimed: opts.SkipUntimed,
		log:         opts.Logger,
	}
}

func (a *Aggregator) parse(field, value string, recordID int64) (time.Time, error) {
	t, err := time.Parse(a.layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("record %d %s %q: %w: %v", recordID, field, value, ErrTimeFormat, err)
	}
	return t, nil
}

// Observe computes the status and delay of one linked event.
func (a *Aggregator) Observe(le *linker.LinkedEvent) (Observation, error) {
	ev := &le.Event
	field, value, ok := EventTime(ev)
	if !ok {
		return Observation{}, fmt.Errorf("record %d (%s): %w", ev.RecordID, ev.Source, ErrNoEventTime)
	}
	if le.Admission == nil || le.Admission.AdmitTime == "" {
		return Observation{}, fmt.Errorf("record %d (%s): %w", ev.RecordID, ev.Source, ErrNoAdmission)
	}

	eventTime, err := a.parse(field.String(), value, ev.RecordID)
	if err != nil {
		return Observation{}, err
	}
	admitTime, err := a.parse(table.ColAdmitTime, le.Admission.AdmitTime, ev.RecordID)
	if err != nil {
		return Observation{}, err
	}

	return Observation{
		Status:    StatusOf(le.Admission.DeathTime),
		DelayDays: DelayDays(eventTime, admitTime),
	}, nil
}

// Build walks linked events in order and appends one observation per event
// to its patient's history.
func (a *Aggregator) Build(linked []linker.LinkedEvent) (*History, error) {
	h := NewHistory()
	var skipped int
	for i := range linked {
		obs, err := a.Observe(&linked[i])
		if err != nil {
			if a.skipUntimed && errors.Is(err, ErrNoEventTime) {
				a.log.Warn().Err(err).Msg("skipping record")
				skipped++
				continue
			}
			return nil, err
		}
		h.Add(linked[i].Event.SubjectID, obs)
	}
	if skipped > 0 {
		a.log.Warn().Int("skipped", skipped).Msg("records without event timestamp were skipped")
	}
	return h, nil
}
