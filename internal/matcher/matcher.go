// Package matcher flags medication records whose free-text label names an
// anticoagulant.
package matcher

import (
	"sort"
	"strings"

	"anticoag/internal/table"
)

// Tally counts occurrences per key.
type Tally map[string]int

// TallyEntry is one key of a Tally.
type TallyEntry struct {
	Key   string
	Count int
}

// Sorted returns entries by descending count, ties broken by key.
func (t Tally) Sorted() []TallyEntry {
	out := make([]TallyEntry, 0, len(t))
	for k, c := range t {
		out = append(out, TallyEntry{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// SourceStats summarises one input table.
type SourceStats struct {
	Source  string
	Scanned int
	Skipped int // label missing
	Matched int
}

// Result is the output of Filter. Events holds each matching record once,
// in input order; the tallies count every stem hit, so a label containing
// two stems contributes twice.
type Result struct {
	StemCounts  Tally
	LabelCounts Tally
	Sources     []SourceStats
	Events      []table.MedicationRecord
}

// Filter scans tables in order and keeps the records whose label contains
// a vocabulary stem. Records without a label are skipped.
func Filter(vocab Vocabulary, tables []*table.MedicationTable) *Result {
	res := &Result{
		StemCounts:  make(Tally),
		LabelCounts: make(Tally),
	}

	for _, tbl := range tables {
		st := SourceStats{Source: tbl.Schema.Name}
		for _, rec := range tbl.Records {
			st.Scanned++
			if !rec.DrugLabel.Valid {
				st.Skipped++
				continue
			}

			label := strings.ToLower(rec.DrugLabel.String)
			hits := vocab.Stems(label)
			for _, stem := range hits {
				res.StemCounts[stem]++
				res.LabelCounts[label]++
			}
			if len(hits) > 0 {
				st.Matched++
				res.Events = append(res.Events, rec)
			}
		}
		res.Sources = append(res.Sources, st)
	}

	return res
}
