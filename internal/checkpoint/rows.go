package checkpoint

import (
	"gopkg.in/guregu/null.v3"

	"anticoag/internal/aggregate"
	"anticoag/internal/linker"
	"anticoag/internal/table"
)

// EventRow is the Parquet schema for filtered anticoagulation events.
type EventRow struct {
	RowID     int64   `parquet:"row_id"`
	SubjectID int64   `parquet:"subject_id"`
	HadmID    *int64  `parquet:"hadm_id,optional"`
	Label     *string `parquet:"label,optional"`
	StartDate *string `parquet:"startdate,optional"`
	ChartTime *string `parquet:"charttime,optional"`
	StartTime *string `parquet:"starttime,optional"`
	Source    string  `parquet:"source"`
}

// AdmissionRow is the Parquet schema for admissions.
type AdmissionRow struct {
	HadmID    int64   `parquet:"hadm_id"`
	SubjectID int64   `parquet:"subject_id"`
	AdmitTime string  `parquet:"admittime"`
	DeathTime *string `parquet:"deathtime,optional"`
}

// LinkedRow is an event with its admission columns denormalized. The
// admission columns are null when the event did not link.
type LinkedRow struct {
	RowID        int64   `parquet:"row_id"`
	SubjectID    int64   `parquet:"subject_id"`
	HadmID       *int64  `parquet:"hadm_id,optional"`
	Label        *string `parquet:"label,optional"`
	StartDate    *string `parquet:"startdate,optional"`
	ChartTime    *string `parquet:"charttime,optional"`
	StartTime    *string `parquet:"starttime,optional"`
	Source       string  `parquet:"source"`
	AdmHadmID    *int64  `parquet:"adm_hadm_id,optional"`
	AdmSubjectID *int64  `parquet:"adm_subject_id,optional"`
	AdmitTime    *string `parquet:"admittime,optional"`
	DeathTime    *string `parquet:"deathtime,optional"`
}

// EarliestRow is the Parquet schema for per-patient earliest events.
type EarliestRow struct {
	SubjectID int64   `parquet:"subject_id"`
	Status    string  `parquet:"status"`
	DelayDays float64 `parquet:"delay_days"`
}

func EventRowOf(r *table.MedicationRecord) EventRow {
	return EventRow{
		RowID:     r.RecordID,
		SubjectID: r.SubjectID,
		HadmID:    r.AdmissionID.Ptr(),
		Label:     r.DrugLabel.Ptr(),
		StartDate: r.StartDate.Ptr(),
		ChartTime: r.ChartTime.Ptr(),
		StartTime: r.StartTime.Ptr(),
		Source:    r.Source,
	}
}

func (e *EventRow) Record() table.MedicationRecord {
	return table.MedicationRecord{
		RecordID:    e.RowID,
		SubjectID:   e.SubjectID,
		AdmissionID: null.IntFromPtr(e.HadmID),
		DrugLabel:   null.StringFromPtr(e.Label),
		StartDate:   null.StringFromPtr(e.StartDate),
		ChartTime:   null.StringFromPtr(e.ChartTime),
		StartTime:   null.StringFromPtr(e.StartTime),
		Source:      e.Source,
	}
}

func AdmissionRowOf(a *table.AdmissionRecord) AdmissionRow {
	return AdmissionRow{
		HadmID:    a.AdmissionID,
		SubjectID: a.SubjectID,
		AdmitTime: a.AdmitTime,
		DeathTime: a.DeathTime.Ptr(),
	}
}

func (a *AdmissionRow) Record() table.AdmissionRecord {
	return table.AdmissionRecord{
		AdmissionID: a.HadmID,
		SubjectID:   a.SubjectID,
		AdmitTime:   a.AdmitTime,
		DeathTime:   null.StringFromPtr(a.DeathTime),
	}
}

func LinkedRowOf(le *linker.LinkedEvent) LinkedRow {
	ev := EventRowOf(&le.Event)
	row := LinkedRow{
		RowID:     ev.RowID,
		SubjectID: ev.SubjectID,
		HadmID:    ev.HadmID,
		Label:     ev.Label,
		StartDate: ev.StartDate,
		ChartTime: ev.ChartTime,
		StartTime: ev.StartTime,
		Source:    ev.Source,
	}
	if a := le.Admission; a != nil {
		hadm, subj, admit := a.AdmissionID, a.SubjectID, a.AdmitTime
		row.AdmHadmID = &hadm
		row.AdmSubjectID = &subj
		row.AdmitTime = &admit
		row.DeathTime = a.DeathTime.Ptr()
	}
	return row
}

func (l *LinkedRow) Linked() linker.LinkedEvent {
	ev := EventRow{
		RowID:     l.RowID,
		SubjectID: l.SubjectID,
		HadmID:    l.HadmID,
		Label:     l.Label,
		StartDate: l.StartDate,
		ChartTime: l.ChartTime,
		StartTime: l.StartTime,
		Source:    l.Source,
	}
	le := linker.LinkedEvent{Event: ev.Record()}
	if l.AdmHadmID != nil {
		a := table.AdmissionRecord{
			AdmissionID: *l.AdmHadmID,
			DeathTime:   null.StringFromPtr(l.DeathTime),
		}
		if l.AdmSubjectID != nil {
			a.SubjectID = *l.AdmSubjectID
		}
		if l.AdmitTime != nil {
			a.AdmitTime = *l.AdmitTime
		}
		le.Admission = &a
	}
	return le
}

func EarliestRowOf(e aggregate.EarliestEvent) EarliestRow {
	return EarliestRow{SubjectID: e.SubjectID, Status: string(e.Status), DelayDays: e.DelayDays}
}

func (e *EarliestRow) Event() aggregate.EarliestEvent {
	return aggregate.EarliestEvent{
		SubjectID: e.SubjectID,
		Status:    aggregate.Status(e.Status),
		DelayDays: e.DelayDays,
	}
}
