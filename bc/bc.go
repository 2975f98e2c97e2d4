// Package bc holds per-face boundary coefficients and their canonical
// setters. Each boundary face carries four coefficients (a, b, af, bf)
// so the reconstructed face value is a + b*phi and the diffusive flux
// is af + bf*phi, with phi the adjacent cell value. Setters write one
// face at a time into caller-owned arrays.
package bc

import (
	"fmt"
	"math"
)

// Type classifies a boundary face for operators and BC automation.
type Type int

const (
	Undefined Type = iota
	SmoothWall
	RoughWall
	Symmetry
	Inlet
	ConvectiveInlet
	Outlet
	FreeInletOutlet
	Coupled
)

func (t Type) String() string {
	switch t {
	case Undefined:
		return "undefined"
	case SmoothWall:
		return "smoothwall"
	case RoughWall:
		return "roughwall"
	case Symmetry:
		return "symmetry"
	case Inlet:
		return "inlet"
	case ConvectiveInlet:
		return "convective_inlet"
	case Outlet:
		return "outlet"
	case FreeInletOutlet:
		return "free_inlet_outlet"
	case Coupled:
		return "coupled"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsWall reports whether faces of this type bound a solid wall.
func (t Type) IsWall() bool {
	return t == SmoothWall || t == RoughWall
}

// TypeByName maps a boundary type name, as written in case files, back
// to its Type. Names match the String forms.
func TypeByName(name string) (Type, error) {
	for t := Undefined; t <= Coupled; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return Undefined, fmt.Errorf("unknown boundary type %q", name)
}

// Coeffs holds the boundary coefficient arrays of a scalar field, one
// entry per boundary face.
type Coeffs struct {
	A, B   []float64
	Af, Bf []float64
}

// NewCoeffs allocates scalar coefficients for n boundary faces, preset
// to a neutral homogeneous Neumann condition.
func NewCoeffs(n int) *Coeffs {
	c := &Coeffs{
		A:  make([]float64, n),
		B:  make([]float64, n),
		Af: make([]float64, n),
		Bf: make([]float64, n),
	}
	for f := range c.B {
		c.B[f] = 1
	}
	return c
}

// SetNeumann imposes the diffusive flux qimp through face f, with hint
// the internal exchange coefficient.
func (c *Coeffs) SetNeumann(f int, qimp, hint float64) {
	c.A[f] = -qimp / hint
	c.B[f] = 1

	c.Af[f] = qimp
	c.Bf[f] = 0
}

// SetDirichlet imposes the value pimp on face f through an external
// exchange coefficient hext; hext < 0 means an infinite coefficient,
// imposing pimp directly.
func (c *Coeffs) SetDirichlet(f int, pimp, hint, hext float64) {
	if hext < 0 {
		c.A[f] = pimp
		c.B[f] = 0

		c.Af[f] = -hint * pimp
		c.Bf[f] = hint
		return
	}
	c.A[f] = hext * pimp / (hint + hext)
	c.B[f] = hint / (hint + hext)

	heq := hint * hext / (hint + hext)
	c.Af[f] = -heq * pimp
	c.Bf[f] = heq
}

// SetConvectiveOutlet lets the value pimp leave through face f at the
// local Courant number cfl.
func (c *Coeffs) SetConvectiveOutlet(f int, pimp, cfl, hint float64) {
	c.B[f] = cfl / (1 + cfl)
	c.A[f] = (1 - c.B[f]) * pimp

	c.Af[f] = -hint * c.A[f]
	c.Bf[f] = hint * (1 - c.B[f])
}

// VectorCoeffs holds the boundary coefficient arrays of a vector
// field: a and af pack 3 components per face, b and bf pack row-major
// 3x3 blocks coupling the components.
type VectorCoeffs struct {
	A, B   []float64
	Af, Bf []float64
}

// NewVectorCoeffs allocates vector coefficients for n boundary faces,
// preset to a neutral homogeneous Neumann condition.
func NewVectorCoeffs(n int) *VectorCoeffs {
	v := &VectorCoeffs{
		A:  make([]float64, 3*n),
		B:  make([]float64, 9*n),
		Af: make([]float64, 3*n),
		Bf: make([]float64, 9*n),
	}
	for f := 0; f < n; f++ {
		for i := 0; i < 3; i++ {
			v.B[9*f+4*i] = 1
		}
	}
	return v
}

// SetNeumann imposes the diffusive flux qimpv through face f.
func (v *VectorCoeffs) SetNeumann(f int, qimpv [3]float64, hint float64) {
	for i := 0; i < 3; i++ {
		v.A[3*f+i] = -qimpv[i] / math.Max(hint, 1e-300)
		v.Af[3*f+i] = qimpv[i]
		for j := 0; j < 3; j++ {
			v.B[9*f+3*i+j] = 0
			v.Bf[9*f+3*i+j] = 0
		}
		v.B[9*f+4*i] = 1
	}
}

// SetDirichlet imposes the value pimpv on face f componentwise, each
// component through its own external exchange coefficient; a negative
// coefficient means an infinite one.
func (v *VectorCoeffs) SetDirichlet(f int, pimpv [3]float64, hint float64, hextv [3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v.B[9*f+3*i+j] = 0
			v.Bf[9*f+3*i+j] = 0
		}
		if hextv[i] < 0 {
			v.A[3*f+i] = pimpv[i]
			v.Af[3*f+i] = -hint * pimpv[i]
			v.Bf[9*f+4*i] = hint
			continue
		}
		heq := hint * hextv[i] / (hint + hextv[i])
		v.A[3*f+i] = hextv[i] * pimpv[i] / (hint + hextv[i])
		v.B[9*f+4*i] = hint / (hint + hextv[i])
		v.Af[3*f+i] = -heq * pimpv[i]
		v.Bf[9*f+4*i] = heq
	}
}

// SetConvectiveOutlet lets the value pimpv leave through face f at the
// local Courant number cfl, componentwise.
func (v *VectorCoeffs) SetConvectiveOutlet(f int, pimpv [3]float64, cfl, hint float64) {
	b := cfl / (1 + cfl)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v.B[9*f+3*i+j] = 0
			v.Bf[9*f+3*i+j] = 0
		}
		v.B[9*f+4*i] = b
		v.A[3*f+i] = (1 - b) * pimpv[i]
		v.Af[3*f+i] = -hint * v.A[3*f+i]
		v.Bf[9*f+4*i] = hint * (1 - b)
	}
}

// SetDirichletAniso imposes the value pimpv on face f with a symmetric
// internal exchange tensor hintt in Voigt order (xx, yy, zz, xy, yz,
// xz). Only an infinite external coefficient is supported.
func (v *VectorCoeffs) SetDirichletAniso(f int, pimpv [3]float64, hintt [6]float64, hextv [3]float64) error {
	for i := 0; i < 3; i++ {
		if hextv[i] >= 0 {
			return fmt.Errorf("anisotropic Dirichlet needs an infinite external exchange coefficient, component %d has %g", i, hextv[i])
		}
	}
	for i := 0; i < 3; i++ {
		v.A[3*f+i] = pimpv[i]
		for j := 0; j < 3; j++ {
			v.B[9*f+3*i+j] = 0
		}
	}

	v.Af[3*f+0] = -(hintt[0]*pimpv[0] + hintt[3]*pimpv[1] + hintt[5]*pimpv[2])
	v.Af[3*f+1] = -(hintt[3]*pimpv[0] + hintt[1]*pimpv[1] + hintt[4]*pimpv[2])
	v.Af[3*f+2] = -(hintt[5]*pimpv[0] + hintt[4]*pimpv[1] + hintt[2]*pimpv[2])

	bf := v.Bf[9*f : 9*f+9]
	bf[0], bf[4], bf[8] = hintt[0], hintt[1], hintt[2]
	bf[1], bf[3] = hintt[3], hintt[3]
	bf[5], bf[7] = hintt[4], hintt[4]
	bf[2], bf[6] = hintt[5], hintt[5]
	return nil
}

// TensorCoeffs holds the boundary coefficient arrays of a symmetric
// tensor field: a and af pack 6 components per face, b and bf pack
// row-major 6x6 blocks coupling the components.
type TensorCoeffs struct {
	A, B   []float64
	Af, Bf []float64
}

// NewTensorCoeffs allocates tensor coefficients for n boundary faces,
// preset to a neutral homogeneous Neumann condition.
func NewTensorCoeffs(n int) *TensorCoeffs {
	t := &TensorCoeffs{
		A:  make([]float64, 6*n),
		B:  make([]float64, 36*n),
		Af: make([]float64, 6*n),
		Bf: make([]float64, 36*n),
	}
	for f := 0; f < n; f++ {
		for i := 0; i < 6; i++ {
			t.B[36*f+7*i] = 1
		}
	}
	return t
}

// SetNeumann imposes the diffusive flux qimpts through face f.
func (t *TensorCoeffs) SetNeumann(f int, qimpts [6]float64, hint float64) {
	for i := 0; i < 6; i++ {
		t.A[6*f+i] = -qimpts[i] / math.Max(hint, 1e-300)
		t.Af[6*f+i] = qimpts[i]
		for j := 0; j < 6; j++ {
			t.B[36*f+6*i+j] = 0
			t.Bf[36*f+6*i+j] = 0
		}
		t.B[36*f+7*i] = 1
	}
}

// SetDirichlet imposes the value pimpts on face f componentwise, each
// component through its own external exchange coefficient; a negative
// coefficient means an infinite one.
func (t *TensorCoeffs) SetDirichlet(f int, pimpts [6]float64, hint float64, hextts [6]float64) {
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			t.B[36*f+6*i+j] = 0
			t.Bf[36*f+6*i+j] = 0
		}
		if hextts[i] < 0 {
			t.A[6*f+i] = pimpts[i]
			t.Af[6*f+i] = -hint * pimpts[i]
			t.Bf[36*f+7*i] = hint
			continue
		}
		heq := hint * hextts[i] / (hint + hextts[i])
		t.A[6*f+i] = hextts[i] * pimpts[i] / (hint + hextts[i])
		t.B[36*f+7*i] = hint / (hint + hextts[i])
		t.Af[6*f+i] = -heq * pimpts[i]
		t.Bf[36*f+7*i] = heq
	}
}
