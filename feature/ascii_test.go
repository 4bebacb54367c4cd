package feature

import (
	"path/filepath"
	"testing"

	"github.com/stephentu/parlearn/dataset"
	"github.com/stephentu/parlearn/vector"
)

func TestASCIIRoundTrip(t *testing.T) {
	rows := []vector.Vector{
		vector.NewDenseFrom([]float64{1, 2, 3}),
		vector.NewDenseFrom([]float64{-1, -2}),
	}
	labels := []float64{1, -1}
	vs, err := dataset.NewVectorStorage(rows, labels)
	if err != nil {
		t.Fatalf("NewVectorStorage: %v", err)
	}

	path := filepath.Join(t.TempDir(), "data.ascii")
	if err := WriteASCII(path, vs); err != nil {
		t.Fatalf("WriteASCII: %v", err)
	}
	got, err := ReadASCII(path)
	if err != nil {
		t.Fatalf("ReadASCII: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("Len = %d, want 2", got.Len())
	}
	if got.Dim() != 3 {
		t.Fatalf("Dim = %d, want 3 (max row width)", got.Dim())
	}
	if got.Y(0) != 1 || got.Y(1) != -1 {
		t.Errorf("labels = (%v,%v), want (1,-1)", got.Y(0), got.Y(1))
	}
}

func TestReadASCIIRejectsBadLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ascii")
	writeFile(t, path, "0 1 2\n")
	if _, err := ReadASCII(path); err == nil {
		t.Fatal("expected error for label not in {-1,+1}")
	}
}

func TestReadASCIIAllowsRaggedRowWidths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragged.ascii")
	writeFile(t, path, "1 1 2 3\n-1 4 5\n")
	got, err := ReadASCII(path)
	if err != nil {
		t.Fatalf("ReadASCII: %v", err)
	}
	if got.Dim() != 3 {
		t.Fatalf("Dim = %d, want 3", got.Dim())
	}
}
