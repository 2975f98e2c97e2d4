package operators

import (
	"fmt"
	"math"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// IterativeSolveScalar advances one scalar transport equation by
// repeated linearized solves: the implicit matrix is assembled once,
// then each sweep solves for an increment against the current
// residual, accumulates it into pvar and rebuilds the residual with
// the explicit operator, until the residual drops under e.EpsRsm
// relative to the reference norm or e.NSwRsm sweeps have run. smbrp
// holds the explicit source terms on entry and is consumed as the
// running residual. pvara is the previous-time value backing the
// unsteady term rovsdt (both nil for a steady equation). A positive
// normp overrides the internally computed reference norm. pvar must
// enter with synchronized ghosts and leaves the same way.
func IterativeSolveScalar(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, name string, e *EquationParams, inc int, normp float64,
	bcc *bc.Coeffs, rovsdt, pvar, pvara, smbrp []float64,
	iMass, bMass, iVisc, bVisc []float64) (sweeps int, residual float64, err error) {

	if c == nil {
		c = utils.Serial()
	}
	symmetric := e.IConv <= 0

	da, xa := MatrixScalar(m, e, symmetric, bcc, rovsdt, nil, iMass, bMass, iVisc, bVisc)
	sys := NewSystem(m, sync, c, 1, symmetric, da, xa)

	n := m.NCells

	// Reference norm: residual of the incoming state.
	rnorm := normp
	if rnorm <= 0 {
		w1 := make([]float64, n)
		sys.Apply(pvar, w1)
		for cl := 0; cl < n; cl++ {
			w1[cl] += smbrp[cl]
		}
		rnorm = math.Sqrt(sys.gdot(w1, w1))
	}

	smbini := make([]float64, n)
	copy(smbini, smbrp)

	dpvar := make([]float64, m.NCellsExt)
	residual = math.Sqrt(sys.gdot(smbrp, smbrp))

	for isweep := 1; isweep == 1 || (isweep <= e.NSwRsm && residual > e.EpsRsm*rnorm); isweep++ {
		for k := range dpvar {
			dpvar[k] = 0
		}
		conv := &Convergence{
			Name:      name,
			Verbosity: e.Verbosity,
			Precision: e.Epsilo,
			RNorm:     rnorm,
		}
		if serr := sys.Solve(smbrp, dpvar, conv); serr != nil {
			return sweeps, residual, serr
		}
		for cl := 0; cl < n; cl++ {
			pvar[cl] += dpvar[cl]
		}
		if sync != nil {
			sync.SyncScalar(pvar)
		}

		for cl := 0; cl < n; cl++ {
			smbrp[cl] = smbini[cl]
			if rovsdt != nil {
				pa := 0.0
				if pvara != nil {
					pa = pvara[cl]
				}
				smbrp[cl] -= rovsdt[cl] * (pvar[cl] - pa)
			}
		}
		ConvectionDiffusionScalar(m, q, sync, c, e, inc, pvar, bcc,
			iMass, bMass, iVisc, bVisc, smbrp)
		residual = math.Sqrt(sys.gdot(smbrp, smbrp))
		sweeps = isweep

		if e.Verbosity >= 2 && c.Rank() == 0 {
			fmt.Printf("%s: CV_DIF_TS, IT: %d, Res: %12.5e, Norm: %12.5e\n",
				name, isweep, residual, rnorm)
		}
	}

	if residual > e.EpsRsm*rnorm && e.Verbosity >= 1 && c.Rank() == 0 {
		fmt.Printf("@ %s: maximum number of sweeps %d reached, residual %12.5e, norm %12.5e\n",
			name, e.NSwRsm, residual, rnorm)
	}
	return sweeps, residual, nil
}
