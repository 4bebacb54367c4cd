package feature

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stephentu/parlearn/dataset"
	"github.com/stephentu/parlearn/vector"
)

// ReadASCII reads the whitespace-separated dense text format: one example
// per line, first token the label y in {-1,+1}, remaining tokens the
// dense feature values. Row widths may differ; the dataset's dimension is
// the widest row.
func ReadASCII(path string) (*dataset.VectorStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feature: open %s: %w", path, err)
	}
	defer f.Close()

	var rows []vector.Vector
	var labels []float64

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		toks := strings.Fields(line)
		y, err := strconv.ParseFloat(toks[0], 64)
		if err != nil {
			return nil, fmt.Errorf("feature: ascii line %d: bad label %q: %w", lineNo, toks[0], err)
		}
		if y != -1 && y != 1 {
			return nil, fmt.Errorf("feature: ascii line %d: label %v not in {-1,+1}", lineNo, y)
		}
		values := make([]float64, len(toks)-1)
		for k, tok := range toks[1:] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("feature: ascii line %d: bad value %q: %w", lineNo, tok, err)
			}
			values[k] = v
		}
		rows = append(rows, vector.NewDenseFrom(values))
		labels = append(labels, y)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("feature: ascii scan: %w", err)
	}
	return dataset.NewVectorStorage(rows, labels)
}

// WriteASCII writes storage in the dense whitespace-separated text format.
func WriteASCII(path string, storage *dataset.VectorStorage) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("feature: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := 0; i < storage.Len(); i++ {
		x := storage.X(i)
		row := make([]float64, x.HighestNonzeroDim())
		x.Iterate(func(idx int, val float64) bool {
			row[idx] = val
			return true
		})
		fmt.Fprintf(w, "%v", storage.Y(i))
		for _, v := range row {
			fmt.Fprintf(w, " %v", v)
		}
		fmt.Fprint(w, "\n")
	}
	return w.Flush()
}
