package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads rows [startIdx, endIdx) of a CSV file whose first column is
// the integer label and whose remaining FeatureLen() columns are the pixel
// values. Every feature is divided by featureScale. A header row is skipped
// when its first cell is not a number. endIdx < 0 reads to the end of file.
func LoadCSV(path string, desc Descriptor, startIdx, endIdx int, featureScale float64) (InMemory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, desc, startIdx, endIdx, featureScale)
}

func ReadCSV(in io.Reader, desc Descriptor, startIdx, endIdx int, featureScale float64) (InMemory, error) {
	if featureScale == 0 {
		featureScale = 1
	}

	r := csv.NewReader(in)
	r.FieldsPerRecord = desc.FeatureLen() + 1
	r.ReuseRecord = true

	samples := InMemory{}
	idx := 0
	for first := true; ; first = false {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", idx, err)
		}

		label, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			if first {
				continue // header
			}
			return nil, fmt.Errorf("row %d label: %w", idx, err)
		}

		row := idx
		idx++
		if row < startIdx {
			continue
		}
		if endIdx >= 0 && row >= endIdx {
			break
		}
		if label < 0 || label >= desc.NumClasses {
			return nil, fmt.Errorf("row %d: label %d outside [0, %d)", row, label, desc.NumClasses)
		}

		feats := make([]float64, desc.FeatureLen())
		for i := range feats {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", row, i+1, err)
			}
			feats[i] = v / featureScale
		}
		samples = append(samples, Sample{Features: feats, Label: label})
	}

	return samples, nil
}
