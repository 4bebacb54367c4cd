// Package feature implements the on-disk dataset formats: a packed binary
// format (dense or sparse), a whitespace-separated ASCII dense format, and
// an SVMlight-style sparse-index text format.
package feature

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/stephentu/parlearn/dataset"
	"github.com/stephentu/parlearn/vector"
)

const (
	binaryHeaderDense  = 0x01
	binaryHeaderSparse = 0x02
)

// ReadBinary reads the packed little-endian binary feature file format:
// one header byte (0x01 dense, 0x02 sparse; no magic, no version, no
// length), followed by a dense or sparse body. EOF between examples
// terminates the stream; a truncated example is a fatal parse error.
func ReadBinary(path string) (*dataset.VectorStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feature: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header uint8
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("feature: read header: %w", err)
	}

	switch header {
	case binaryHeaderDense:
		return readBinaryDense(r)
	case binaryHeaderSparse:
		return readBinarySparse(r)
	default:
		return nil, fmt.Errorf("feature: unknown binary header byte 0x%x", header)
	}
}

func readBinaryDense(r *bufio.Reader) (*dataset.VectorStorage, error) {
	var d uint32
	if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
		return nil, fmt.Errorf("feature: read dense dim: %w", err)
	}

	var rows []vector.Vector
	var labels []float64
	for {
		var y int8
		if err := binary.Read(r, binary.LittleEndian, &y); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("feature: truncated dense example at row %d: %w", len(rows), err)
		}
		if y != -1 && y != 1 {
			return nil, fmt.Errorf("feature: dense label %d not in {-1,+1}", y)
		}
		values := make([]float64, d)
		if err := binary.Read(r, binary.LittleEndian, &values); err != nil {
			return nil, fmt.Errorf("feature: truncated dense example at row %d: %w", len(rows), err)
		}
		rows = append(rows, vector.NewDenseFrom(values))
		labels = append(labels, float64(y))
	}
	return dataset.NewVectorStorage(rows, labels)
}

func readBinarySparse(r *bufio.Reader) (*dataset.VectorStorage, error) {
	var rows []vector.Vector
	var labels []float64
	for {
		var y int8
		if err := binary.Read(r, binary.LittleEndian, &y); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("feature: truncated sparse example at row %d: %w", len(rows), err)
		}
		if y != -1 && y != 1 {
			return nil, fmt.Errorf("feature: sparse label %d not in {-1,+1}", y)
		}
		var m uint32
		if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
			return nil, fmt.Errorf("feature: truncated sparse example at row %d: %w", len(rows), err)
		}
		sv := vector.NewSparse()
		prev := -1
		for k := uint32(0); k < m; k++ {
			var idx uint32
			var val float64
			if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
				return nil, fmt.Errorf("feature: truncated sparse pair at row %d: %w", len(rows), err)
			}
			if err := binary.Read(r, binary.LittleEndian, &val); err != nil {
				return nil, fmt.Errorf("feature: truncated sparse pair at row %d: %w", len(rows), err)
			}
			if int(idx) <= prev {
				return nil, fmt.Errorf("feature: sparse indices not strictly ascending at row %d", len(rows))
			}
			prev = int(idx)
			sv.Set(int(idx), val)
		}
		rows = append(rows, sv)
		labels = append(labels, float64(y))
	}
	return dataset.NewVectorStorage(rows, labels)
}

// WriteBinary writes storage in the packed binary format. sparse selects
// the sparse body; the dense body writes every row at the dataset's
// dimension, zero-filling narrower rows and rejecting a row wider than it.
func WriteBinary(path string, storage *dataset.VectorStorage, sparse bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("feature: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := uint8(binaryHeaderDense)
	if sparse {
		header = binaryHeaderSparse
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("feature: write header: %w", err)
	}

	if sparse {
		if err := writeBinarySparse(w, storage); err != nil {
			return err
		}
	} else {
		if err := writeBinaryDense(w, storage); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeBinaryDense(w *bufio.Writer, storage *dataset.VectorStorage) error {
	n := storage.Len()
	d := uint32(storage.Dim())
	if err := binary.Write(w, binary.LittleEndian, d); err != nil {
		return fmt.Errorf("feature: write dense dim: %w", err)
	}
	for i := 0; i < n; i++ {
		x := storage.X(i)
		if uint32(x.HighestNonzeroDim()) > d {
			return fmt.Errorf("feature: row %d has width %d, exceeds dataset dim %d", i, x.HighestNonzeroDim(), d)
		}
		y := int8(storage.Y(i))
		if err := binary.Write(w, binary.LittleEndian, y); err != nil {
			return fmt.Errorf("feature: write label at row %d: %w", i, err)
		}
		values := make([]float64, d)
		x.Iterate(func(j int, v float64) bool {
			values[j] = v
			return true
		})
		if err := binary.Write(w, binary.LittleEndian, values); err != nil {
			return fmt.Errorf("feature: write dense row %d: %w", i, err)
		}
	}
	return nil
}

func writeBinarySparse(w *bufio.Writer, storage *dataset.VectorStorage) error {
	for i := 0; i < storage.Len(); i++ {
		x := storage.X(i)
		y := int8(storage.Y(i))
		if err := binary.Write(w, binary.LittleEndian, y); err != nil {
			return fmt.Errorf("feature: write label at row %d: %w", i, err)
		}
		m := uint32(x.NNZ())
		if err := binary.Write(w, binary.LittleEndian, m); err != nil {
			return fmt.Errorf("feature: write nnz at row %d: %w", i, err)
		}
		var iterErr error
		x.Iterate(func(j int, v float64) bool {
			if err := binary.Write(w, binary.LittleEndian, uint32(j)); err != nil {
				iterErr = err
				return false
			}
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				iterErr = err
				return false
			}
			return true
		})
		if iterErr != nil {
			return fmt.Errorf("feature: write sparse pairs at row %d: %w", i, iterErr)
		}
	}
	return nil
}
