package transport

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/operators"
	"github.com/notargets/gofv/utils"
)

// Van Driest damping length in wall units.
const vanDriest = 26.0

// WallDistance holds the distance to the nearest wall boundary and the
// state needed to skip recomputation when neither the mesh nor the
// boundary conditions changed. The distance comes from the diffusion
// equation -div(grad phi) = 1 with phi = 0 at walls and a homogeneous
// Neumann condition elsewhere, recovered as
//
//	d = sqrt(|grad phi|^2 + 2 phi) - |grad phi|
//
// One instance serves one mesh; Compute and YPlus are collective over
// the communicator.
type WallDistance struct {
	Dist []float64 // distance per cell over the owned and ghost range

	// Params controls the wall distance equation, YPParams the steady
	// convection equation of the dimensionless refinement.
	Params   operators.EquationParams
	YPParams operators.EquationParams

	// NClipped counts the cells whose potential came out negative on
	// the first, reconstructed solve.
	NClipped int

	coeffs   *bc.Coeffs
	epoch    int
	nWall    int
	nWallSet bool
}

// NewWallDistance returns a solver with pure-diffusion controls for
// the distance equation and pure upwind convection for the
// dimensionless one.
func NewWallDistance() *WallDistance {
	wd := operators.DefaultParams()
	wd.IConv = 0
	wd.IMasac = 0
	wd.BlendCv = 0

	yp := operators.DefaultParams()
	yp.IDiff = 0
	yp.BlendCv = 0
	return &WallDistance{Params: wd, YPParams: yp}
}

// Compute refreshes the wall distance. Walls are the faces whose type
// answers IsWall. The solve is skipped when the mesh epoch and the
// derived boundary coefficients match the previous call and the stored
// distance is non-trivial. When the reconstructed solve produces
// negative potentials the cells are counted, clipped, and the solve is
// repeated without reconstruction until positive, up to ten times.
func (w *WallDistance) Compute(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, bTypes []bc.Type) error {

	if c == nil {
		c = utils.Serial()
	}

	ndircp := 0
	haveDiff := 1
	fresh := w.coeffs == nil || len(w.coeffs.A) != m.NBFaces ||
		w.epoch != m.Epoch || len(w.Dist) != m.NCellsExt
	if fresh {
		w.coeffs = bc.NewCoeffs(m.NBFaces)
		w.Dist = make([]float64, m.NCellsExt)
	} else {
		haveDiff = 0
	}
	w.epoch = m.Epoch

	cf := w.coeffs
	for f := 0; f < m.NBFaces; f++ {
		aPrev, bPrev := cf.A[f], cf.B[f]
		if bTypes[f].IsWall() {
			cf.SetDirichlet(f, 0, 1/q.BDist[f], -1)
			ndircp++
		} else {
			cf.SetNeumann(f, 0, 1/q.BDist[f])
		}
		if math.Abs(aPrev-cf.A[f])+math.Abs(bPrev-cf.B[f]) > 1e-12 {
			haveDiff = 1
		}
	}
	if haveDiff == 0 {
		if floats.Dot(w.Dist[:m.NCells], w.Dist[:m.NCells]) <= 0 {
			haveDiff = 1
		}
	}

	ndircp = int(c.AllReduceInt64(int64(ndircp), utils.OpSum))
	haveDiff = int(c.AllReduceInt64(int64(haveDiff), utils.OpSum))

	if ndircp == 0 || haveDiff == 0 {
		if ndircp == 0 {
			for cl := range w.Dist {
				w.Dist[cl] = big
			}
		}
		return nil
	}

	one := make([]float64, m.NCellsExt)
	for cl := range one {
		one[cl] = 1
	}
	e := w.Params
	e.NDircl = ndircp
	iVisc, bVisc := operators.FaceViscosity(m, q, e.ImVisf, one)
	iMass := make([]float64, m.NIFaces)
	bMass := make([]float64, m.NBFaces)

	smbrp := make([]float64, m.NCells)
	solve := func() error {
		for cl := 0; cl < m.NCells; cl++ {
			smbrp[cl] = q.CellVol[cl]
		}
		_, _, err := operators.IterativeSolveScalar(m, q, sync, c, "wall_distance",
			&e, 1, -1, cf, nil, w.Dist, nil, smbrp, iMass, bMass, iVisc, bVisc)
		return err
	}
	// Clip negative potentials to a sliver of the local cell size and
	// report how many and how far below zero they went.
	clipNegative := func() (int, float64) {
		n, low := 0, big
		for cl := 0; cl < m.NCells; cl++ {
			if w.Dist[cl] < 0 {
				n++
				low = math.Min(low, w.Dist[cl])
				w.Dist[cl] = epzero * math.Cbrt(q.CellVol[cl])
			}
		}
		n = int(c.AllReduceInt64(int64(n), utils.OpSum))
		low = c.AllReduceFloat64(low, utils.OpMin)
		return n, low
	}

	if err := solve(); err != nil {
		return err
	}
	mmprpl, low := clipNegative()
	w.NClipped = mmprpl

	if mmprpl >= 1 {
		if e.NSwRsm > 0 {
			e.NSwRsm = 0
			e.IRcflu = 0
			e.IRcflb = 0
			if c.Rank() == 0 {
				fmt.Printf("@ wall distance: solution negative in %d cells, recomputing without reconstruction\n",
					mmprpl)
			}
			for cl := range w.Dist {
				w.Dist[cl] = 0
			}
			for iter := 1; ; iter++ {
				if err := solve(); err != nil {
					return err
				}
				mmprpl, _ = clipNegative()
				if mmprpl == 0 {
					break
				}
				if iter > 10 {
					return fmt.Errorf("wall distance: positivity not recovered after %d attempts", iter)
				}
			}
		} else if c.Rank() == 0 {
			fmt.Printf("@ wall distance: solution does not respect the maximum principle, minimum %14.6e\n",
				low)
		}
	}

	phi := make([]float64, m.NCells)
	for cl := 0; cl < m.NCells; cl++ {
		phi[cl] = math.Max(w.Dist[cl], 0)
	}
	grad := operators.GradientScalar(m, q, sync, c, cf, 1, e.NSwRgr, e.EpsRgr, w.Dist)

	counter := 0
	for cl := 0; cl < m.NCells; cl++ {
		ng := grad[3*cl]*grad[3*cl] + grad[3*cl+1]*grad[3*cl+1] + grad[3*cl+2]*grad[3*cl+2]
		if ng+2*phi[cl] >= 0 {
			w.Dist[cl] = math.Sqrt(ng+2*phi[cl]) - math.Sqrt(ng)
		} else {
			counter++
		}
	}
	counter = int(c.AllReduceInt64(int64(counter), utils.OpSum))
	if counter > 0 && c.Rank() == 0 {
		fmt.Printf("@ wall distance: the associated variable does not converge in %10d cells\n",
			counter)
	}

	if sync != nil {
		sync.SyncScalar(w.Dist)
	}

	dismin, dismax := big, -big
	for cl := 0; cl < m.NCells; cl++ {
		dismin = math.Min(dismin, w.Dist[cl])
		dismax = math.Max(dismax, w.Dist[cl])
	}
	dismin = c.AllReduceFloat64(dismin, utils.OpMin)
	dismax = c.AllReduceFloat64(dismax, utils.OpMax)
	if c.Rank() == 0 {
		fmt.Printf("\n ** WALL DISTANCE\n    -------------\n\n"+
			"  Min distance = %14.5e, Max distance = %14.5e.\n", dismin, dismax)
	}
	return nil
}

// YPlusField carries the physical inputs and outputs of the
// dimensionless wall distance refinement.
type YPlusField struct {
	Uet    []float64 // friction velocity per boundary face
	Rho    []float64 // density per cell
	Mu     []float64 // dynamic viscosity per cell
	YPlus  []float64 // in/out, per cell over the owned and ghost range
	Visct  []float64 // turbulent viscosity, Van Driest damped in place, nil to skip
	Visvdr []float64 // wall-absorbed viscosity per cell, entries above -900 restored, nil to skip
	TimeStep int
}

// YPlus solves the steady convection of u*/nu along the wall distance
// gradient and rescales it into y+ = d * u*/nu. The convecting flux
// comes from the diffusion potential of the stored distance, reversed
// so it points away from the walls. On the first time step the field
// is set to a large value instead, since the friction velocity is not
// established yet. The solution is clamped to the range of the wall
// values, so cells the front has not reached stay at the wall maximum.
func (w *WallDistance) YPlus(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, bTypes []bc.Type, f *YPlusField) error {

	if c == nil {
		c = utils.Serial()
	}
	if len(w.Dist) != m.NCellsExt {
		return errors.New("yplus: wall distance not computed")
	}

	if !w.nWallSet {
		w.nWallSet = true
		n := 0
		for fb := 0; fb < m.NBFaces; fb++ {
			if bTypes[fb].IsWall() {
				n++
			}
		}
		w.nWall = int(c.AllReduceInt64(int64(n), utils.OpSum))
	}
	if w.nWall == 0 {
		for cl := range f.YPlus {
			f.YPlus[cl] = big
		}
		return nil
	}

	e := w.YPParams
	if f.TimeStep == 1 {
		for cl := 0; cl < m.NCells; cl++ {
			f.YPlus[cl] = big
		}
		if e.Verbosity >= 1 && c.Rank() == 0 {
			fmt.Printf("\n ** DIMENSIONLESS WALL DISTANCE\n    ---------------------------\n\n" +
				"  It is not computed at the first time step\n")
		}
		return nil
	}

	// Dirichlet u* rho/mu at walls on y+, Dirichlet 0 on the distance
	// potential driving the flux, homogeneous Neumann elsewhere.
	ypc := bc.NewCoeffs(m.NBFaces)
	wdc := bc.NewCoeffs(m.NBFaces)
	for fb := 0; fb < m.NBFaces; fb++ {
		hint := 1 / q.BDist[fb]
		if bTypes[fb].IsWall() {
			cl := m.BFaceCells[fb]
			ypc.SetDirichlet(fb, f.Uet[fb]*f.Rho[cl]/f.Mu[cl], hint, -1)
			wdc.SetDirichlet(fb, 0, hint, -1)
		} else {
			ypc.SetNeumann(fb, 0, hint)
			wdc.SetNeumann(fb, 0, hint)
		}
	}

	viscap := make([]float64, m.NCellsExt)
	for cl := range viscap {
		viscap[cl] = 1
	}
	iVisc, bVisc := operators.FaceViscosity(m, q, e.ImVisf, viscap)

	nswrgp := e.NSwRgr
	if e.IRcflu == 0 {
		nswrgp = 0
	}
	iMass := make([]float64, m.NIFaces)
	bMass := make([]float64, m.NBFaces)
	operators.FaceDiffusionPotential(m, q, sync, c, true, 1, nswrgp, e.EpsRgr,
		w.Dist, wdc, iVisc, bVisc, viscap, iMass, bMass)
	floats.Scale(-1, iMass)
	floats.Scale(-1, bMass)

	// The flux field is not divergence free, reinforce the diagonal
	// with a fraction of the local imbalance.
	rovsdp := make([]float64, m.NCellsExt)
	for fi := 0; fi < m.NIFaces; fi++ {
		i, j := m.IFaceCells[fi][0], m.IFaceCells[fi][1]
		rovsdp[i] += iMass[fi]
		rovsdp[j] -= iMass[fi]
	}
	for fb := 0; fb < m.NBFaces; fb++ {
		if cl := m.BFaceCells[fb]; cl >= 0 {
			rovsdp[cl] += bMass[fb]
		}
	}
	for cl := 0; cl < m.NCells; cl++ {
		rovsdp[cl] = 1e-6 * math.Abs(rovsdp[cl])
	}
	if sync != nil {
		sync.SyncScalar(rovsdp)
	}

	xusnmx, xusnmn := -big, big
	for fb := 0; fb < m.NBFaces; fb++ {
		if bTypes[fb].IsWall() {
			xusnmx = math.Max(xusnmx, ypc.A[fb])
			xusnmn = math.Min(xusnmn, ypc.A[fb])
		}
	}
	xusnmx = c.AllReduceFloat64(xusnmx, utils.OpMax)
	xusnmn = c.AllReduceFloat64(xusnmn, utils.OpMin)

	dvarp := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		usna := f.YPlus[cl] / math.Max(w.Dist[cl], epzero)
		usna = math.Max(usna, xusnmn)
		usna = math.Min(usna, xusnmx)
		dvarp[cl] = usna
	}
	if sync != nil {
		sync.SyncScalar(dvarp)
	}

	// Reference norm: L2 mean of u*/nu over the wall surface, scaled
	// by the total volume.
	xnorm0, wallSurf := 0.0, 0.0
	for fb := 0; fb < m.NBFaces; fb++ {
		if bTypes[fb].IsWall() {
			wallSurf += q.BFaceSurf[fb]
			xnorm0 += ypc.A[fb] * ypc.A[fb] * q.BFaceSurf[fb]
		}
	}
	xnorm0 = c.AllReduceFloat64(xnorm0, utils.OpSum)
	wallSurf = c.AllReduceFloat64(wallSurf, utils.OpSum)
	totVol := 0.0
	for cl := 0; cl < m.NCells; cl++ {
		totVol += q.CellVol[cl]
	}
	totVol = c.AllReduceFloat64(totVol, utils.OpSum)
	xnorm0 = math.Sqrt(xnorm0/wallSurf) * totVol

	smbdp := make([]float64, m.NCells)
	e.NDircl = 1
	if _, _, err := operators.IterativeSolveScalar(m, q, sync, c, "wall_yplus",
		&e, 1, xnorm0, ypc, rovsdp, dvarp, dvarp, smbdp,
		iMass, bMass, iMass, bMass); err != nil {
		return err
	}

	dismin, dismax := big, -big
	for cl := 0; cl < m.NCells; cl++ {
		dvarp[cl] = math.Min(math.Max(dvarp[cl], xusnmn), xusnmx)
		f.YPlus[cl] = dvarp[cl] * w.Dist[cl]
		dismin = math.Min(dismin, f.YPlus[cl])
		dismax = math.Max(dismax, f.YPlus[cl])
	}
	dismin = c.AllReduceFloat64(dismin, utils.OpMin)
	dismax = c.AllReduceFloat64(dismax, utils.OpMax)
	if e.Verbosity >= 1 && c.Rank() == 0 {
		fmt.Printf("\n ** DIMENSIONLESS WALL DISTANCE\n    ---------------------------\n\n"+
			"  Min distance+ = %14.5e, Max distance+ = %14.5e.\n", dismin, dismax)
	}

	if f.Visct != nil {
		for cl := 0; cl < m.NCells; cl++ {
			d := 1 - math.Exp(-f.YPlus[cl]/vanDriest)
			f.Visct[cl] *= d * d
			if f.Visvdr != nil && f.Visvdr[cl] > -900 {
				f.Visct[cl] = f.Visvdr[cl]
			}
		}
	}
	return nil
}

// GeometricWallDistance computes the distance to the walls as the
// minimum cell center to wall face centroid distance, serial meshes
// only: a halo means walls on other partitions could be closer than
// any wall this rank sees.
func GeometricWallDistance(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	bTypes []bc.Type) ([]float64, error) {

	if sync != nil {
		return nil, errors.New("geometric wall distance cannot be used in parallel or with a periodic mesh")
	}
	d := make([]float64, m.NCells)
	for cl := range d {
		d[cl] = big * big
	}
	for fb := 0; fb < m.NBFaces; fb++ {
		if !bTypes[fb].IsWall() {
			continue
		}
		for cl := 0; cl < m.NCells; cl++ {
			var dd float64
			for k := 0; k < 3; k++ {
				x := q.BFaceCog[3*fb+k] - q.CellCen[3*cl+k]
				dd += x * x
			}
			if dd < d[cl] {
				d[cl] = dd
			}
		}
	}
	dismin, dismax := big, -big
	for cl := range d {
		d[cl] = math.Sqrt(d[cl])
		dismin = math.Min(dismin, d[cl])
		dismax = math.Max(dismax, d[cl])
	}
	fmt.Printf("\n ** WALL DISTANCE (brute force algorithm)\n    -------------\n\n"+
		" Min distance = %14.5f, Max distance = %14.5f\n", dismin, dismax)
	return d, nil
}
