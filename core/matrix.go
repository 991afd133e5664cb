// Package core defines the shared numeric types used across layerpress.
package core

import "fmt"

// Matrix is a dense row-major float32 matrix.
//
// It is the common representation for layer weight matrices
// (outFeatures x inFeatures) and calibration activation batches
// (samples x inFeatures). The backing slice is exposed for hot loops;
// callers must not resize it.
type Matrix struct {
	rows, cols int
	data       []float32
}

// NewMatrix creates a zero-initialized rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("core: invalid matrix shape %dx%d", rows, cols))
	}
	return &Matrix{
		rows: rows,
		cols: cols,
		data: make([]float32, rows*cols),
	}
}

// NewMatrixFrom wraps an existing row-major slice as a rows x cols matrix.
// The slice is used directly, not copied.
func NewMatrixFrom(rows, cols int, data []float32) *Matrix {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("core: data length %d does not match shape %dx%d", len(data), rows, cols))
	}
	return &Matrix{
		rows: rows,
		cols: cols,
		data: data,
	}
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Data returns the backing row-major slice.
func (m *Matrix) Data() []float32 { return m.data }

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float32 {
	return m.data[i*m.cols+j]
}

// Set stores v at (i, j).
func (m *Matrix) Set(i, j int, v float32) {
	m.data[i*m.cols+j] = v
}

// Row returns row i as a subslice of the backing data.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Col copies column j into dst, which must have length Rows().
func (m *Matrix) Col(dst []float32, j int) {
	for i := 0; i < m.rows; i++ {
		dst[i] = m.data[i*m.cols+j]
	}
}

// SetCol copies src into column j. src must have length Rows().
func (m *Matrix) SetCol(j int, src []float32) {
	for i := 0; i < m.rows; i++ {
		m.data[i*m.cols+j] = src[i]
	}
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	data := make([]float32, len(m.data))
	copy(data, m.data)
	return &Matrix{
		rows: m.rows,
		cols: m.cols,
		data: data,
	}
}

// CopyFrom overwrites the values of m with those of src.
// Shapes must match exactly; the backing slice of m is reused.
func (m *Matrix) CopyFrom(src *Matrix) error {
	if m.rows != src.rows || m.cols != src.cols {
		return fmt.Errorf("core: shape mismatch %dx%d vs %dx%d", m.rows, m.cols, src.rows, src.cols)
	}
	copy(m.data, src.data)
	return nil
}

// SizeBytes returns the in-memory size of the backing data in bytes.
func (m *Matrix) SizeBytes() int64 {
	return int64(len(m.data)) * 4
}
