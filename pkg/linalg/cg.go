package linalg

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
)

// CGOptions controls the conjugate gradient solver.
type CGOptions struct {
	MaxIterations int     // 0 means 10 * n
	Tolerance     float64 // relative residual, 0 means 1e-10
}

// CGResult reports how a solve ended.
type CGResult struct {
	Iterations int
	Residual   float64 // final relative residual
	Converged  bool
}

// SolveCG solves A x = b for symmetric positive definite A with Jacobi
// preconditioned conjugate gradients. x holds the initial guess and
// receives the solution. Not converging is reported in the result, not as
// an error; the error is only set when ctx is done.
func SolveCG(ctx context.Context, a *CSR, b, x []float64, opts CGOptions) (CGResult, error) {
	n := a.Rows
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 10 * n
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = 1e-10
	}

	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return CGResult{Converged: true}, nil
	}

	inv := a.Diagonal()
	for i, d := range inv {
		if d > 0 {
			inv[i] = 1 / d
		} else {
			inv[i] = 1
		}
	}

	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	// r = b - A x
	a.MulVec(r, x)
	floats.SubTo(r, b, r)
	floats.MulTo(z, inv, r)
	copy(p, z)
	rz := floats.Dot(r, z)

	res := CGResult{Residual: floats.Norm(r, 2) / bnorm}
	for res.Iterations < maxIter {
		if res.Residual <= tol {
			res.Converged = true
			return res, nil
		}
		if res.Iterations%64 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		a.MulVec(ap, p)
		pap := floats.Dot(p, ap)
		if !(pap > 0) || math.IsInf(pap, 0) {
			// A is not positive definite along p; keep the current iterate
			return res, nil
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		res.Iterations++
		res.Residual = floats.Norm(r, 2) / bnorm

		floats.MulTo(z, inv, r)
		rzNew := floats.Dot(r, z)
		beta := rzNew / rz
		rz = rzNew
		// p = z + beta p
		floats.AddScaledTo(p, z, beta, p)
	}
	res.Converged = res.Residual <= tol
	return res, nil
}
