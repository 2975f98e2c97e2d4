package operators

import (
	"fmt"
	"math"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// Convergence carries the tolerance of a linear solve in and its
// iteration count and final residual out. RNorm scales the precision
// into an absolute threshold; a non-positive RNorm makes the precision
// absolute. A zero NIterMax selects the default budget.
type Convergence struct {
	Name      string
	Verbosity int
	NIter     int
	NIterMax  int
	Precision float64
	RNorm     float64
	Residual  float64
}

const defaultNIterMax = 10000

// System is a sparse linear system over the owned cells of one mesh
// partition, with db unknowns per cell. Rows cover owned cells only;
// columns extend over the ghost cells so the matrix-vector product can
// consume synchronized off-partition values. Solves are collective
// over the communicator.
type System struct {
	m     *mesh.Mesh
	sync  mesh.Synchronizer
	c     *utils.Comm
	db    int
	sym   bool
	mat   utils.CSR
	adInv []float64
}

// NewSystem assembles the system from a diagonal array and an
// extra-diagonal-per-face array as produced by the matrix operators.
// da holds either one entry per cell, replicated over the components,
// or db*db blocks per cell. xa holds one entry per interior face for a
// symmetric system and two otherwise, shared by all components.
func NewSystem(m *mesh.Mesh, sync mesh.Synchronizer, c *utils.Comm,
	db int, symmetric bool, da, xa []float64) *System {

	if c == nil {
		c = utils.Serial()
	}
	s := &System{
		m:    m,
		sync: sync,
		c:    c,
		db:   db,
		sym:  symmetric,
	}

	blocks := len(da) == db*db*m.NCellsExt && db > 1
	dok := utils.NewDOK(db*m.NCells, db*m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		for cm := 0; cm < db; cm++ {
			if blocks {
				for k := 0; k < db; k++ {
					v := da[db*db*cl+db*cm+k]
					if v != 0 || cm == k {
						dok.Set(db*cl+cm, db*cl+k, v)
					}
				}
			} else {
				dok.Set(db*cl+cm, db*cl+cm, da[cl])
			}
		}
	}
	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		xij, xji := 0.0, 0.0
		if symmetric {
			xij, xji = xa[f], xa[f]
		} else {
			xij, xji = xa[2*f], xa[2*f+1]
		}
		for cm := 0; cm < db; cm++ {
			if i < m.NCells {
				dok.Add(db*i+cm, db*j+cm, xij)
			}
			if j < m.NCells {
				dok.Add(db*j+cm, db*i+cm, xji)
			}
		}
	}
	s.mat = dok.ToCSR()
	s.factorDiagonal(da, blocks)
	return s
}

// factorDiagonal prepares the Jacobi preconditioner: inverse diagonal
// entries for scalar systems, in-place LU factors of the db x db
// diagonal blocks otherwise.
func (s *System) factorDiagonal(da []float64, blocks bool) {
	db := s.db
	if db == 1 || !blocks {
		s.adInv = make([]float64, db*s.m.NCells)
		for cl := 0; cl < s.m.NCells; cl++ {
			inv := 1.0
			if da[cl] != 0 {
				inv = 1 / da[cl]
			}
			for cm := 0; cm < db; cm++ {
				s.adInv[db*cl+cm] = inv
			}
		}
		return
	}
	s.adInv = make([]float64, db*db*s.m.NCells)
	for cl := 0; cl < s.m.NCells; cl++ {
		factorLU(da[db*db*cl:db*db*(cl+1)], s.adInv[db*db*cl:db*db*(cl+1)], db)
	}
}

// factorLU computes the in-place LU factors of one block, the unit
// lower triangle stored below the diagonal and the upper triangle on
// and above it.
func factorLU(ad, lu []float64, db int) {
	copy(lu, ad)
	for i := 0; i < db; i++ {
		for j := 0; j < i; j++ {
			sum := lu[i*db+j]
			for k := 0; k < j; k++ {
				sum -= lu[i*db+k] * lu[k*db+j]
			}
			if lu[j*db+j] != 0 {
				lu[i*db+j] = sum / lu[j*db+j]
			} else {
				lu[i*db+j] = 0
			}
		}
		for j := i; j < db; j++ {
			sum := lu[i*db+j]
			for k := 0; k < i; k++ {
				sum -= lu[i*db+k] * lu[k*db+j]
			}
			lu[i*db+j] = sum
		}
	}
}

// precond applies the (block-)Jacobi preconditioner z = M^-1 r over
// the owned entries.
func (s *System) precond(z, r []float64) {
	db := s.db
	if db == 1 || len(s.adInv) == db*s.m.NCells {
		for k := range r {
			z[k] = s.adInv[k] * r[k]
		}
		return
	}
	for cl := 0; cl < s.m.NCells; cl++ {
		lu := s.adInv[db*db*cl : db*db*(cl+1)]
		zb, rb := z[db*cl:db*(cl+1)], r[db*cl:db*(cl+1)]
		for i := 0; i < db; i++ {
			sum := rb[i]
			for k := 0; k < i; k++ {
				sum -= lu[i*db+k] * zb[k]
			}
			zb[i] = sum
		}
		for i := db - 1; i >= 0; i-- {
			sum := zb[i]
			for k := i + 1; k < db; k++ {
				sum -= lu[i*db+k] * zb[k]
			}
			if lu[i*db+i] != 0 {
				zb[i] = sum / lu[i*db+i]
			} else {
				zb[i] = sum
			}
		}
	}
}

// syncGhosts refreshes the ghost tail of a solution-sized vector.
func (s *System) syncGhosts(x []float64) {
	if s.sync == nil {
		return
	}
	switch s.db {
	case 1:
		s.sync.SyncScalar(x)
	case 3:
		s.sync.SyncVector(x)
	case 6:
		s.sync.SyncSymTensor(x)
	case 9:
		s.sync.SyncTensor(x)
	default:
		s.sync.SyncStrided(x, s.db)
	}
}

// Apply computes y = A*x over the owned rows. x must be sized for
// owned plus ghost cells; its ghost tail is refreshed first.
func (s *System) Apply(x, y []float64) {
	s.syncGhosts(x)
	s.mat.MulVec(x, y)
}

// gdot is a dot product over the owned entries, reduced over the
// communicator.
func (s *System) gdot(a, b []float64) float64 {
	var d float64
	for k := range a {
		d += a[k] * b[k]
	}
	return s.c.AllReduceFloat64(d, utils.OpSum)
}

// Solve runs a preconditioned conjugate gradient on a symmetric system
// and BiCGSTAB otherwise, until the residual drops under the threshold
// of conv. x is in/out sized for owned plus ghost cells; the ghost
// tail is scratch during the solve and stale after it, callers
// resynchronize. rhs covers the owned cells.
func (s *System) Solve(rhs, x []float64, conv *Convergence) error {
	n := s.db * s.m.NCells
	maxIter := conv.NIterMax
	if maxIter <= 0 {
		maxIter = defaultNIterMax
	}
	thresh := conv.Precision
	if conv.RNorm > 0 {
		thresh = conv.Precision * conv.RNorm
	}

	r := make([]float64, n)
	s.Apply(x, r)
	for k := 0; k < n; k++ {
		r[k] = rhs[k] - r[k]
	}
	conv.NIter = 0
	conv.Residual = math.Sqrt(s.gdot(r, r))
	if conv.Residual <= thresh {
		return nil
	}

	var err error
	if s.sym {
		err = s.solveCG(r, x, thresh, maxIter, conv)
	} else {
		err = s.solveBiCGSTAB(r, x, thresh, maxIter, conv)
	}
	if err != nil {
		return err
	}
	if conv.Residual > thresh {
		return fmt.Errorf("%s: no convergence after %d iterations, residual %.5e, threshold %.5e",
			conv.Name, conv.NIter, conv.Residual, thresh)
	}
	return nil
}

func (s *System) solveCG(r, x []float64, thresh float64, maxIter int, conv *Convergence) error {
	n := s.db * s.m.NCells
	var (
		z = make([]float64, n)
		p = make([]float64, s.db*s.m.NCellsExt)
		q = make([]float64, n)
	)
	s.precond(z, r)
	rz := s.gdot(r, z)
	copy(p[:n], z)

	for it := 1; it <= maxIter; it++ {
		s.Apply(p, q)
		pq := s.gdot(p[:n], q)
		if pq == 0 {
			return fmt.Errorf("%s: conjugate gradient breakdown at iteration %d", conv.Name, it)
		}
		alpha := rz / pq
		for k := 0; k < n; k++ {
			x[k] += alpha * p[k]
			r[k] -= alpha * q[k]
		}
		conv.NIter = it
		conv.Residual = math.Sqrt(s.gdot(r, r))
		if conv.Verbosity > 2 && s.c.Rank() == 0 {
			fmt.Printf("  %s: n_iter: %5d, res_abs: %11.4e\n", conv.Name, it, conv.Residual)
		}
		if conv.Residual <= thresh {
			return nil
		}
		s.precond(z, r)
		rzNew := s.gdot(r, z)
		beta := rzNew / rz
		rz = rzNew
		for k := 0; k < n; k++ {
			p[k] = z[k] + beta*p[k]
		}
	}
	return nil
}

func (s *System) solveBiCGSTAB(r, x []float64, thresh float64, maxIter int, conv *Convergence) error {
	n := s.db * s.m.NCells
	var (
		r0   = make([]float64, n)
		p    = make([]float64, n)
		v    = make([]float64, n)
		sv   = make([]float64, n)
		t    = make([]float64, n)
		phat = make([]float64, s.db*s.m.NCellsExt)
		shat = make([]float64, s.db*s.m.NCellsExt)
	)
	copy(r0, r)
	rho, alpha, omega := 1.0, 1.0, 1.0

	for it := 1; it <= maxIter; it++ {
		rhoNew := s.gdot(r0, r)
		if math.Abs(rhoNew) < 1e-300 {
			return fmt.Errorf("%s: BiCGSTAB breakdown at iteration %d", conv.Name, it)
		}
		if it == 1 {
			copy(p, r)
		} else {
			beta := (rhoNew / rho) * (alpha / omega)
			for k := 0; k < n; k++ {
				p[k] = r[k] + beta*(p[k]-omega*v[k])
			}
		}
		rho = rhoNew

		s.precond(phat[:n], p)
		s.Apply(phat, v)
		r0v := s.gdot(r0, v)
		if r0v == 0 {
			return fmt.Errorf("%s: BiCGSTAB breakdown at iteration %d", conv.Name, it)
		}
		alpha = rho / r0v
		for k := 0; k < n; k++ {
			sv[k] = r[k] - alpha*v[k]
		}

		s.precond(shat[:n], sv)
		s.Apply(shat, t)
		tt := s.gdot(t, t)
		ts := s.gdot(t, sv)
		if tt > 0 {
			omega = ts / tt
		} else {
			omega = 0
		}
		for k := 0; k < n; k++ {
			x[k] += alpha*phat[k] + omega*shat[k]
			r[k] = sv[k] - omega*t[k]
		}
		conv.NIter = it
		conv.Residual = math.Sqrt(s.gdot(r, r))
		if conv.Verbosity > 2 && s.c.Rank() == 0 {
			fmt.Printf("  %s: n_iter: %5d, res_abs: %11.4e\n", conv.Name, it, conv.Residual)
		}
		if conv.Residual <= thresh {
			return nil
		}
		if omega == 0 {
			return fmt.Errorf("%s: BiCGSTAB stagnation at iteration %d", conv.Name, it)
		}
	}
	return nil
}
