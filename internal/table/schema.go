package table

// Column names shared by every MIMIC-III source table. They are matched
// verbatim against the file header.
const (
	ColRowID     = "ROW_ID"
	ColSubjectID = "SUBJECT_ID"
	ColHadmID    = "HADM_ID"
	ColAdmitTime = "ADMITTIME"
	ColDeathTime = "DEATHTIME"
)

// TimeField identifies which of the three event timestamp candidates a
// column feeds.
type TimeField int

const (
	StartDate TimeField = iota
	ChartTime
	StartTime
)

func (f TimeField) String() string {
	switch f {
	case StartDate:
		return "STARTDATE"
	case ChartTime:
		return "CHARTTIME"
	case StartTime:
		return "STARTTIME"
	}
	return "UNKNOWN"
}

// TimeColumn binds a header column to a timestamp candidate.
type TimeColumn struct {
	Field  TimeField
	Column string
}

// Schema describes one medication source table: the column holding the
// free-text drug label and the timestamp columns it carries, in priority
// order. Column indices are resolved once when the file is opened.
type Schema struct {
	Name        string
	LabelColumn string
	TimeColumns []TimeColumn
}

var (
	// Prescriptions is the prescriptions table; labels live in DRUG.
	Prescriptions = Schema{
		Name:        "prescriptions",
		LabelColumn: "DRUG",
		TimeColumns: []TimeColumn{{Field: StartDate, Column: "STARTDATE"}},
	}

	// InputEventsCV is the CareVue input events table.
	InputEventsCV = Schema{
		Name:        "inputevents_cv",
		LabelColumn: "LABEL",
		TimeColumns: []TimeColumn{{Field: ChartTime, Column: "CHARTTIME"}},
	}

	// InputEventsMV is the MetaVision input events table.
	InputEventsMV = Schema{
		Name:        "inputevents_mv",
		LabelColumn: "LABEL",
		TimeColumns: []TimeColumn{{Field: StartTime, Column: "STARTTIME"}},
	}
)

// DefaultSources returns the three medication sources in processing order.
func DefaultSources() []Schema {
	return []Schema{Prescriptions, InputEventsCV, InputEventsMV}
}

// SchemaByName looks up one of the default sources.
func SchemaByName(name string) (Schema, bool) {
	for _, s := range DefaultSources() {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}
