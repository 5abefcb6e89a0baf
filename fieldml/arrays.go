package fieldml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/notargets/femesh/status"
)

// formatDouble renders a value at full double round-trip precision.
func formatDouble(v float64) string {
	return fmt.Sprintf("%.17g", v)
}

// sizeAttr joins per-dimension sizes for the size attribute.
func sizeAttr(sizes []int) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, " ")
}

// denseDoubleSource encodes a row-major dense double array, one row per
// line for the slowest-varying dimension.
func denseDoubleSource(name string, sizes []int, values []float64) ArrayDataSource {
	rowLen := 1
	for _, s := range sizes[1:] {
		rowLen *= s
	}
	var b strings.Builder
	b.WriteByte('\n')
	for i, v := range values {
		b.WriteString(formatDouble(v))
		if rowLen > 0 && (i+1)%rowLen == 0 {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
	}
	return ArrayDataSource{Name: name, Rank: len(sizes), Size: sizeAttr(sizes), Data: b.String()}
}

// denseIntSource encodes a row-major dense int array.
func denseIntSource(name string, sizes []int, values []int) ArrayDataSource {
	rowLen := 1
	for _, s := range sizes[1:] {
		rowLen *= s
	}
	var b strings.Builder
	b.WriteByte('\n')
	for i, v := range values {
		b.WriteString(strconv.Itoa(v))
		if rowLen > 0 && (i+1)%rowLen == 0 {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
	}
	return ArrayDataSource{Name: name, Rank: len(sizes), Size: sizeAttr(sizes), Data: b.String()}
}

// dokSources encodes sparse records as a rank-2 key array (one sparse
// index tuple per record) and a rank-2 value array (one dense double block
// per record).
func dokSources(name string, keys [][]int, values [][]float64) (ArrayDataSource, ArrayDataSource) {
	keyWidth, valueWidth := 0, 0
	if len(keys) > 0 {
		keyWidth = len(keys[0])
		valueWidth = len(values[0])
	}
	flatKeys := make([]int, 0, len(keys)*keyWidth)
	for _, k := range keys {
		flatKeys = append(flatKeys, k...)
	}
	flatValues := make([]float64, 0, len(values)*valueWidth)
	for _, v := range values {
		flatValues = append(flatValues, v...)
	}
	return denseIntSource(name+".keys", []int{len(keys), keyWidth}, flatKeys),
		denseDoubleSource(name+".values", []int{len(values), valueWidth}, flatValues)
}

// dokIntSources is dokSources for integer value blocks (connectivity).
func dokIntSources(name string, keys [][]int, values [][]int) (ArrayDataSource, ArrayDataSource) {
	keyWidth, valueWidth := 0, 0
	if len(keys) > 0 {
		keyWidth = len(keys[0])
		valueWidth = len(values[0])
	}
	flatKeys := make([]int, 0, len(keys)*keyWidth)
	for _, k := range keys {
		flatKeys = append(flatKeys, k...)
	}
	flatValues := make([]int, 0, len(values)*valueWidth)
	for _, v := range values {
		flatValues = append(flatValues, v...)
	}
	return denseIntSource(name+".keys", []int{len(keys), keyWidth}, flatKeys),
		denseIntSource(name+".values", []int{len(values), valueWidth}, flatValues)
}

// parseSizes parses a size attribute back into dimensions.
func parseSizes(attr string) ([]int, error) {
	fields := strings.Fields(attr)
	sizes := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: array size %q", status.ErrGeneral, attr)
		}
		sizes[i] = n
	}
	return sizes, nil
}

// parseDoubles parses a source's text into values, checking the count
// against its declared sizes.
func parseDoubles(src *ArrayDataSource) ([]float64, error) {
	sizes, err := parseSizes(src.Size)
	if err != nil {
		return nil, err
	}
	want := 1
	for _, s := range sizes {
		want *= s
	}
	fields := strings.Fields(src.Data)
	if len(fields) != want {
		return nil, fmt.Errorf("%w: data source %q has %d values, size declares %d",
			status.ErrGeneral, src.Name, len(fields), want)
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		values[i], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: data source %q value %q", status.ErrGeneral, src.Name, f)
		}
	}
	return values, nil
}

// parseInts parses a source's text into integer values, checking the count.
func parseInts(src *ArrayDataSource) ([]int, error) {
	sizes, err := parseSizes(src.Size)
	if err != nil {
		return nil, err
	}
	want := 1
	for _, s := range sizes {
		want *= s
	}
	fields := strings.Fields(src.Data)
	if len(fields) != want {
		return nil, fmt.Errorf("%w: data source %q has %d values, size declares %d",
			status.ErrGeneral, src.Name, len(fields), want)
	}
	values := make([]int, len(fields))
	for i, f := range fields {
		values[i], err = strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: data source %q value %q", status.ErrGeneral, src.Name, f)
		}
	}
	return values, nil
}
