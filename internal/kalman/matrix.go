package kalman

// Mat4 is a fixed-size row-major 4x4 matrix.
type Mat4 [4][4]float64

func Identity4() Mat4 {
	var m Mat4
	for i := 0; i < 4; i++ {
		m[i][i] = 1
	}
	return m
}

func Diag4(a, b, c, d float64) Mat4 {
	var m Mat4
	m[0][0], m[1][1], m[2][2], m[3][3] = a, b, c, d
	return m
}

func (a Mat4) Mul(b Mat4) Mat4 {
	var c Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[i][k] * b[k][j]
			}
			c[i][j] = sum
		}
	}
	return c
}

func (a Mat4) T() Mat4 {
	var t Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			t[j][i] = a[i][j]
		}
	}
	return t
}

func (a Mat4) Add(b Mat4) Mat4 {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] += b[i][j]
		}
	}
	return a
}

// Symmetrize averages each off-diagonal pair and floors the diagonal.
func (a *Mat4) Symmetrize(floor float64) {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			avg := 0.5 * (a[i][j] + a[j][i])
			a[i][j] = avg
			a[j][i] = avg
		}
		if !(a[i][i] >= floor) {
			a[i][i] = floor
		}
	}
}

// IsSymmetric reports whether every off-diagonal pair agrees within tol.
func (a Mat4) IsSymmetric(tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			d := a[i][j] - a[j][i]
			if d > tol || d < -tol {
				return false
			}
		}
	}
	return true
}

// transition returns the constant-velocity state transition for step dt.
//
//	F = [1  0  dt  0 ]
//	    [0  1  0   dt]
//	    [0  0  1   0 ]
//	    [0  0  0   1 ]
func transition(dt float64) Mat4 {
	f := Identity4()
	f[0][2] = dt
	f[1][3] = dt
	return f
}

// processNoise is the discretized white-acceleration noise for one axis pair,
// with no cross-axis terms.
func processNoise(dt, q float64) Mat4 {
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt

	var m Mat4
	m[0][0] = q * dt4 / 4
	m[1][1] = q * dt4 / 4
	m[0][2] = q * dt3 / 2
	m[2][0] = q * dt3 / 2
	m[1][3] = q * dt3 / 2
	m[3][1] = q * dt3 / 2
	m[2][2] = q * dt2
	m[3][3] = q * dt2
	return m
}
