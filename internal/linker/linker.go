// Package linker attaches admission data to anticoagulation events.
package linker

import "anticoag/internal/table"

// LinkedEvent is an event enriched with its admission. Admission is nil
// when no admission carries the event's HADM_ID.
type LinkedEvent struct {
	Event     table.MedicationRecord
	Admission *table.AdmissionRecord
}

// DedupeAdmissions keeps the first admission seen for each admission id.
func DedupeAdmissions(adm []table.AdmissionRecord) []table.AdmissionRecord {
	seen := make(map[int64]bool, len(adm))
	out := make([]table.AdmissionRecord, 0, len(adm))
	for _, a := range adm {
		if seen[a.AdmissionID] {
			continue
		}
		seen[a.AdmissionID] = true
		out = append(out, a)
	}
	return out
}

// UniqueSubjects keeps the first admission seen for each patient, giving
// one row per patient for cohort-level counts.
func UniqueSubjects(adm []table.AdmissionRecord) []table.AdmissionRecord {
	seen := make(map[int64]bool, len(adm))
	out := make([]table.AdmissionRecord, 0, len(adm))
	for _, a := range adm {
		if seen[a.SubjectID] {
			continue
		}
		seen[a.SubjectID] = true
		out = append(out, a)
	}
	return out
}

// Link left-joins events to admissions on admission id. Every event
// appears exactly once in the output, in input order. Admissions are
// expected to be deduplicated already; if they are not, the first row per
// id wins.
func Link(events []table.MedicationRecord, admissions []table.AdmissionRecord) []LinkedEvent {
	byID := make(map[int64]*table.AdmissionRecord, len(admissions))
	for i := range admissions {
		if _, ok := byID[admissions[i].AdmissionID]; !ok {
			byID[admissions[i].AdmissionID] = &admissions[i]
		}
	}

	out := make([]LinkedEvent, len(events))
	for i, ev := range events {
		out[i].Event = ev
		if ev.AdmissionID.Valid {
			out[i].Admission = byID[ev.AdmissionID.Int64]
		}
	}
	return out
}

// Stats counts join hits and misses.
func Stats(linked []LinkedEvent) (hits, misses int) {
	for _, l := range linked {
		if l.Admission != nil {
			hits++
		} else {
			misses++
		}
	}
	return hits, misses
}
