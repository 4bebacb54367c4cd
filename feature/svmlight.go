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

// ReadSVMLight reads the SVMlight-style sparse-index text format: one
// example per line, `y [index:value ...]` with 1-based ascending
// indices. y in {-1,0,+1}, with 0 remapped to -1. Tokens without a colon
// (namespace markers) are ignored.
func ReadSVMLight(path string) (*dataset.VectorStorage, error) {
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
			return nil, fmt.Errorf("feature: svmlight line %d: bad label %q: %w", lineNo, toks[0], err)
		}
		if y == 0 {
			y = -1
		} else if y != -1 && y != 1 {
			return nil, fmt.Errorf("feature: svmlight line %d: label %v not in {-1,0,+1}", lineNo, y)
		}

		sv := vector.NewSparse()
		prev := 0
		for _, tok := range toks[1:] {
			idxStr, valStr, ok := strings.Cut(tok, ":")
			if !ok {
				// namespace token or other unknown marker; ignored.
				continue
			}
			idx1, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("feature: svmlight line %d: bad index %q: %w", lineNo, idxStr, err)
			}
			if idx1 <= prev {
				return nil, fmt.Errorf("feature: svmlight line %d: indices not strictly ascending", lineNo)
			}
			prev = idx1
			val, err := strconv.ParseFloat(valStr, 64)
			if err != nil {
				return nil, fmt.Errorf("feature: svmlight line %d: bad value %q: %w", lineNo, valStr, err)
			}
			sv.Set(idx1-1, val) // svmlight indices are 1-based
		}
		rows = append(rows, sv)
		labels = append(labels, y)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("feature: svmlight scan: %w", err)
	}
	return dataset.NewVectorStorage(rows, labels)
}

// WriteSVMLight writes storage in the sparse-index text format, using
// 1-based ascending indices.
func WriteSVMLight(path string, storage *dataset.VectorStorage) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("feature: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := 0; i < storage.Len(); i++ {
		x := storage.X(i)
		fmt.Fprintf(w, "%v", storage.Y(i))
		x.Iterate(func(idx int, val float64) bool {
			fmt.Fprintf(w, " %d:%v", idx+1, val)
			return true
		})
		fmt.Fprint(w, "\n")
	}
	return w.Flush()
}
