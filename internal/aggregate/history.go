package aggregate

// Observation is one anticoagulation event of a patient.
type Observation struct {
	Status    Status
	DelayDays float64
}

// History maps patients to their observations in encounter order.
type History struct {
	order  []int64
	events map[int64][]Observation
	all    []Observation
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{events: make(map[int64][]Observation)}
}

// Add appends an observation to subject's history.
func (h *History) Add(subject int64, obs Observation) {
	if _, ok := h.events[subject]; !ok {
		h.order = append(h.order, subject)
	}
	h.events[subject] = append(h.events[subject], obs)
	h.all = append(h.all, obs)
}

// Has reports whether subject has at least one observation.
func (h *History) Has(subject int64) bool {
	_, ok := h.events[subject]
	return ok
}

// Subjects returns patients in first-seen order.
func (h *History) Subjects() []int64 {
	return h.order
}

// Events returns the observations of one patient.
func (h *History) Events(subject int64) []Observation {
	return h.events[subject]
}

// All returns every observation across patients in insertion order.
func (h *History) All() []Observation {
	return h.all
}

// Len is the number of patients.
func (h *History) Len() int {
	return len(h.order)
}

// EarliestEvent summarises one patient: the status recorded with the
// first-inserted observation and the minimum delay over all observations.
// The two may come from different events.
type EarliestEvent struct {
	SubjectID int64
	Status    Status
	DelayDays float64
}

// Earliest reduces each patient history, in first-seen patient order.
func (h *History) Earliest() []EarliestEvent {
	out := make([]EarliestEvent, 0, len(h.order))
	for _, subject := range h.order {
		obs := h.events[subject]
		ee := EarliestEvent{
			SubjectID: subject,
			Status:    obs[0].Status,
			DelayDays: obs[0].DelayDays,
		}
		for _, o := range obs[1:] {
			if o.DelayDays < ee.DelayDays {
				ee.DelayDays = o.DelayDays
			}
		}
		out = append(out, ee)
	}
	return out
}
