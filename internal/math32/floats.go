// Package math32 provides float32 vector kernels for the compression hot paths.
// This is an internal package - external users should use the obq package.
package math32

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// Axpy computes dst[i] += alpha * x[i] for all i.
// Public for use by the error propagation step.
func Axpy(alpha float32, x, dst []float32) {
	if alpha == 0 {
		return
	}
	for i := range x {
		dst[i] += alpha * x[i]
	}
}

// SquaredL2 calculates the squared L2 distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}
