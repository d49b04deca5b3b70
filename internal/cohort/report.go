package cohort

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"
)

func ratioString(s Survival) string {
	r, err := s.AliveRatio()
	if err != nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", r)
}

func num(format string, v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf(format, v)
}

// WriteText prints the report in a fixed human-readable layout.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	d := r.Delay
	c := r.ChiSquare

	fmt.Fprintf(tw, "Delay to first anticoagulation (%s t-test)\n", d.Mode)
	fmt.Fprintf(tw, "  alive\tn=%d\tmean=%s days\n", d.N1, num("%.4f", d.Mean1))
	fmt.Fprintf(tw, "  expired\tn=%d\tmean=%s days\n", d.N2, num("%.4f", d.Mean2))
	if r.DelayErr != nil {
		fmt.Fprintf(tw, "  t=n/a\t%v\n", r.DelayErr)
	} else {
		fmt.Fprintf(tw, "  t=%.6f\tdf=%.4f\tp=%.6g\n", d.Statistic, d.DF, d.PValue)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Anticoagulation vs survival")
	fmt.Fprintln(tw, "  \tAlive\tExpired\tExpected alive\tExpected expired")
	rows := []string{"anticoagulated", "not anticoagulated"}
	for i, name := range rows {
		ea, ee := "n/a", "n/a"
		if len(c.Expected) > i {
			ea, ee = num("%.2f", c.Expected[i][ColAlive]), num("%.2f", c.Expected[i][ColExpired])
		}
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%s\t%s\n",
			name, r.Contingency[i][ColAlive], r.Contingency[i][ColExpired], ea, ee)
	}
	if r.ChiSquareErr != nil {
		fmt.Fprintf(tw, "  chi2=n/a\t%v\n", r.ChiSquareErr)
	} else {
		corrected := ""
		if c.Corrected {
			corrected = " (Yates)"
		}
		fmt.Fprintf(tw, "  chi2=%.6f%s\tdof=%d\tp=%.6g\n", c.Statistic, corrected, c.DF, c.PValue)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Survival ratio")
	fmt.Fprintf(tw, "  anticoagulated\t%d/%d\t%s\n", r.Anticoagulated.Alive, r.Anticoagulated.Total(), ratioString(r.Anticoagulated))
	fmt.Fprintf(tw, "  not anticoagulated\t%d/%d\t%s\n", r.NotAnticoagulated.Alive, r.NotAnticoagulated.Total(), ratioString(r.NotAnticoagulated))

	return tw.Flush()
}
