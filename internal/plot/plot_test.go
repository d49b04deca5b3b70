package plot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGroups(t *testing.T) {
	names, groups, err := Groups(
		[]string{"Expired", "Alive", "Alive", "Expired", "Alive"},
		[]float64{3, 1, 2, 4, -1},
	)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(names) != 2 || names[0] != "Alive" || names[1] != "Expired" {
		t.Errorf("names = %v", names)
	}
	if len(groups["Alive"]) != 3 || groups["Alive"][2] != -1 {
		t.Errorf("alive = %v", groups["Alive"])
	}
}

func TestGroupsLengthMismatch(t *testing.T) {
	if _, _, err := Groups([]string{"Alive"}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for misaligned input")
	}
}

func TestBoxPlotterWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delay.png")
	var sink Sink = NewBoxPlotter(path)

	err := sink.Plot(
		[]string{"Alive", "Alive", "Alive", "Expired", "Expired"},
		[]float64{0.5, 1.2, 2.0, 2.2, 3.5},
	)
	if err != nil {
		t.Fatalf("Plot: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestBoxPlotterNoData(t *testing.T) {
	b := NewBoxPlotter(filepath.Join(t.TempDir(), "empty.png"))
	if err := b.Plot(nil, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}
