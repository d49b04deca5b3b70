package cohort

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrInsufficientSample = errors.New("each group needs at least two observations")
	ErrZeroVariance       = errors.New("both groups have zero variance")
	ErrZeroExpected       = errors.New("contingency table has a zero expected frequency")
)

// TTestMode selects the variance assumption of the two-sample t-test.
type TTestMode string

const (
	// Student pools the variances (equal-variance assumption).
	Student TTestMode = "student"
	// Welch does not assume equal variances.
	Welch TTestMode = "welch"
)

// TTestResult is the outcome of an unpaired two-sample t-test. The
// statistic is positive when the first sample has the larger mean.
type TTestResult struct {
	Mode      TTestMode
	Statistic float64
	PValue    float64 // two-sided
	DF        float64
	N1, N2    int
	Mean1     float64
	Mean2     float64
}

// TTest compares the means of x and y.
func TTest(x, y []float64, mode TTestMode) (TTestResult, error) {
	n1, n2 := len(x), len(y)
	if n1 < 2 || n2 < 2 {
		return TTestResult{}, fmt.Errorf("t-test with n1=%d n2=%d: %w", n1, n2, ErrInsufficientSample)
	}

	m1, v1 := stat.MeanVariance(x, nil)
	m2, v2 := stat.MeanVariance(y, nil)
	f1, f2 := float64(n1), float64(n2)

	var se, df float64
	switch mode {
	case Student, "":
		mode = Student
		df = f1 + f2 - 2
		pooled := ((f1-1)*v1 + (f2-1)*v2) / df
		se = math.Sqrt(pooled * (1/f1 + 1/f2))
	case Welch:
		a, b := v1/f1, v2/f2
		se = math.Sqrt(a + b)
		df = (a + b) * (a + b) / (a*a/(f1-1) + b*b/(f2-1))
	default:
		return TTestResult{}, fmt.Errorf("unknown t-test mode %q", mode)
	}
	if se == 0 {
		return TTestResult{}, ErrZeroVariance
	}

	t := (m1 - m2) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	return TTestResult{
		Mode:      mode,
		Statistic: t,
		PValue:    2 * dist.Survival(math.Abs(t)),
		DF:        df,
		N1:        n1,
		N2:        n2,
		Mean1:     m1,
		Mean2:     m2,
	}, nil
}

// undefinedTTest describes samples a t-test could not be run on. Group
// sizes and means are kept; the statistic, p-value and df are NaN.
func undefinedTTest(x, y []float64, mode TTestMode) TTestResult {
	if mode == "" {
		mode = Student
	}
	nan := math.NaN()
	return TTestResult{
		Mode:      mode,
		Statistic: nan,
		PValue:    nan,
		DF:        nan,
		N1:        len(x),
		N2:        len(y),
		Mean1:     mean(x),
		Mean2:     mean(y),
	}
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// ChiSquareResult is the outcome of a chi-squared test of independence.
type ChiSquareResult struct {
	Statistic float64
	PValue    float64
	DF        int
	Expected  [][]float64
	Corrected bool // Yates' continuity correction was applied
}

// ChiSquare tests independence of rows and columns of an observed
// frequency table. With yates set, the continuity correction is applied
// when the table has one degree of freedom: each cell moves towards its
// expected value by at most 0.5.
func ChiSquare(observed [][]float64, yates bool) (ChiSquareResult, error) {
	rows := len(observed)
	if rows == 0 || len(observed[0]) == 0 {
		return ChiSquareResult{}, fmt.Errorf("empty contingency table")
	}
	cols := len(observed[0])

	rowSum := make([]float64, rows)
	colSum := make([]float64, cols)
	var total float64
	for i, row := range observed {
		if len(row) != cols {
			return ChiSquareResult{}, fmt.Errorf("contingency row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, v := range row {
			if v < 0 {
				return ChiSquareResult{}, fmt.Errorf("negative frequency %v at (%d,%d)", v, i, j)
			}
			rowSum[i] += v
			colSum[j] += v
			total += v
		}
	}

	expected := make([][]float64, rows)
	obs := make([]float64, 0, rows*cols)
	exp := make([]float64, 0, rows*cols)
	for i := range observed {
		expected[i] = make([]float64, cols)
		for j := range observed[i] {
			e := 0.0
			if total > 0 {
				e = rowSum[i] * colSum[j] / total
			}
			if e == 0 {
				return ChiSquareResult{}, fmt.Errorf("cell (%d,%d): %w", i, j, ErrZeroExpected)
			}
			expected[i][j] = e
			obs = append(obs, observed[i][j])
			exp = append(exp, e)
		}
	}

	res := ChiSquareResult{
		DF:       (rows - 1) * (cols - 1),
		Expected: expected,
	}
	if res.DF == 0 {
		res.PValue = 1
		return res, nil
	}

	if yates && res.DF == 1 {
		res.Corrected = true
		for k := range obs {
			diff := exp[k] - obs[k]
			step := math.Min(0.5, math.Abs(diff))
			obs[k] += math.Copysign(step, diff)
		}
	}

	res.Statistic = stat.ChiSquare(obs, exp)
	res.PValue = distuv.ChiSquared{K: float64(res.DF)}.Survival(res.Statistic)
	return res, nil
}
