package table

import "gopkg.in/guregu/null.v3"

// MedicationRecord is one row of a medication source table. Only the
// timestamp fields named by the source schema are ever populated.
type MedicationRecord struct {
	RecordID    int64
	SubjectID   int64
	AdmissionID null.Int
	DrugLabel   null.String
	StartDate   null.String
	ChartTime   null.String
	StartTime   null.String
	Source      string
}

// Time returns the value stored for the given timestamp candidate.
func (r *MedicationRecord) Time(f TimeField) null.String {
	switch f {
	case StartDate:
		return r.StartDate
	case ChartTime:
		return r.ChartTime
	case StartTime:
		return r.StartTime
	}
	return null.String{}
}

func (r *MedicationRecord) setTime(f TimeField, v null.String) {
	switch f {
	case StartDate:
		r.StartDate = v
	case ChartTime:
		r.ChartTime = v
	case StartTime:
		r.StartTime = v
	}
}

// MedicationTable is the content of one source file.
type MedicationTable struct {
	Schema  Schema
	Records []MedicationRecord
}

// AdmissionRecord is one hospital admission. DeathTime is null when the
// patient left the hospital alive.
type AdmissionRecord struct {
	AdmissionID int64
	SubjectID   int64
	AdmitTime   string
	DeathTime   null.String
}
