// Package cohort compares anticoagulated and non-anticoagulated patients:
// delay to first anticoagulation by outcome, and the association between
// anticoagulation and survival.
package cohort

import (
	"errors"
	"fmt"

	"anticoag/internal/aggregate"
	"anticoag/internal/table"
)

var ErrEmptyCohort = errors.New("cohort is empty")

// Contingency row and column indices.
const (
	RowAnticoagulated    = 0
	RowNotAnticoagulated = 1
	ColAlive             = 0
	ColExpired           = 1
)

// Contingency counts patients by anticoagulation (rows) and survival
// status (columns).
type Contingency [2][2]int

// Floats returns the table in the shape ChiSquare expects.
func (c Contingency) Floats() [][]float64 {
	out := make([][]float64, 2)
	for i := range c {
		out[i] = []float64{float64(c[i][ColAlive]), float64(c[i][ColExpired])}
	}
	return out
}

// Member is one patient of a cohort with their outcome.
type Member struct {
	SubjectID int64
	Status    aggregate.Status
}

// Survival counts outcomes within one cohort.
type Survival struct {
	Alive   int
	Expired int
}

func (s Survival) Total() int { return s.Alive + s.Expired }

// AliveRatio is the fraction of the cohort that survived.
func (s Survival) AliveRatio() (float64, error) {
	if s.Total() == 0 {
		return 0, ErrEmptyCohort
	}
	return float64(s.Alive) / float64(s.Total()), nil
}

func (s *Survival) add(st aggregate.Status) {
	if st == aggregate.Expired {
		s.Expired++
	} else {
		s.Alive++
	}
}

// Partition splits the admission cohort by whether a patient received
// anticoagulation.
type Partition struct {
	Anticoagulated    []Member
	NotAnticoagulated []Member
}

// Split partitions patients. Every earliest event is an anticoagulated
// patient classified by the event's status. Cohort patients without an
// earliest event are classified from their own admission. Each patient
// lands in exactly one side, at most once.
func Split(cohort []table.AdmissionRecord, earliest []aggregate.EarliestEvent) Partition {
	var p Partition
	seen := make(map[int64]bool, len(cohort)+len(earliest))
	for _, ee := range earliest {
		if seen[ee.SubjectID] {
			continue
		}
		seen[ee.SubjectID] = true
		p.Anticoagulated = append(p.Anticoagulated, Member{SubjectID: ee.SubjectID, Status: ee.Status})
	}
	for _, a := range cohort {
		if seen[a.SubjectID] {
			continue
		}
		seen[a.SubjectID] = true
		p.NotAnticoagulated = append(p.NotAnticoagulated, Member{
			SubjectID: a.SubjectID,
			Status:    aggregate.StatusOf(a.DeathTime),
		})
	}
	return p
}

func survivalOf(members []Member) Survival {
	var s Survival
	for _, m := range members {
		s.add(m.Status)
	}
	return s
}

// Survival returns outcome counts of both sides.
func (p Partition) Survival() (anticoagulated, other Survival) {
	return survivalOf(p.Anticoagulated), survivalOf(p.NotAnticoagulated)
}

// Contingency builds the 2x2 table of the partition.
func (p Partition) Contingency() Contingency {
	anti, other := p.Survival()
	var c Contingency
	c[RowAnticoagulated][ColAlive] = anti.Alive
	c[RowAnticoagulated][ColExpired] = anti.Expired
	c[RowNotAnticoagulated][ColAlive] = other.Alive
	c[RowNotAnticoagulated][ColExpired] = other.Expired
	return c
}

// Delays partitions earliest-event delays by status.
func Delays(earliest []aggregate.EarliestEvent) (alive, expired []float64) {
	for _, ee := range earliest {
		if ee.Status == aggregate.Expired {
			expired = append(expired, ee.DelayDays)
		} else {
			alive = append(alive, ee.DelayDays)
		}
	}
	return alive, expired
}

// Series returns aligned status labels and delays for plotting.
func Series(earliest []aggregate.EarliestEvent) (labels []string, delays []float64) {
	labels = make([]string, len(earliest))
	delays = make([]float64, len(earliest))
	for i, ee := range earliest {
		labels[i] = string(ee.Status)
		delays[i] = ee.DelayDays
	}
	return labels, delays
}

// Options configures Compare.
type Options struct {
	TTest TTestMode
	Yates bool
}

// Report holds the outcome of both analyses. The analyses are independent:
// when one cannot be computed its error is recorded and the other is
// still reported.
type Report struct {
	Delay             TTestResult // Alive vs Expired
	DelayErr          error
	Contingency       Contingency
	ChiSquare         ChiSquareResult
	ChiSquareErr      error
	Anticoagulated    Survival
	NotAnticoagulated Survival
}

// Compare runs the delay analysis and the association analysis. It fails
// only when neither analysis produced a result.
func Compare(cohort []table.AdmissionRecord, earliest []aggregate.EarliestEvent, opts Options) (*Report, error) {
	r := &Report{}

	alive, expired := Delays(earliest)
	delay, err := TTest(alive, expired, opts.TTest)
	if err != nil {
		r.DelayErr = fmt.Errorf("delay analysis: %w", err)
		delay = undefinedTTest(alive, expired, opts.TTest)
	}
	r.Delay = delay

	part := Split(cohort, earliest)
	r.Contingency = part.Contingency()
	r.Anticoagulated, r.NotAnticoagulated = part.Survival()
	chi, err := ChiSquare(r.Contingency.Floats(), opts.Yates)
	if err != nil {
		r.ChiSquareErr = fmt.Errorf("association analysis: %w", err)
	}
	r.ChiSquare = chi

	if r.DelayErr != nil && r.ChiSquareErr != nil {
		return nil, errors.Join(r.DelayErr, r.ChiSquareErr)
	}
	return r, nil
}
