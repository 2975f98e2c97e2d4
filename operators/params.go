// Package operators provides the finite-volume building blocks of a
// cell-centered transport equation: face viscosities, mass-flux
// divergence, diffusion potentials, cell gradients, the explicit
// convection/diffusion balance, matrix assembly and the iterative
// sweep driver around the native sparse solver.
//
// All operators share one contract: they add into the caller's arrays
// and never overwrite them, they read at most the owned+ghost range,
// and they consult boundary conditions only through the (a, b, af, bf)
// coefficient quadruples.
package operators

// EquationParams carries the per-equation discretization and solver
// controls consumed by the transport operators. Zero values are not
// meaningful defaults; start from DefaultParams.
type EquationParams struct {
	Verbosity int

	IConv int // convection term on (1) or off (0)
	IDiff int // diffusion term on (1) or off (0)

	// NDircl counts faces carrying a Dirichlet condition. When zero the
	// assembled matrix gets a slight diagonal reinforcement so pure
	// Neumann problems stay invertible.
	NDircl int

	IdtVar int // temporal scheme, negative for steady

	Theta  float64 // implicitness of the face terms (1 fully implicit)
	IMasac int     // subtract the mass accumulation term phi*div(m)

	// BlendCv blends the convective face value between upwind (0) and
	// centered (1).
	BlendCv float64

	IRcflu int // reconstruct interior diffusive fluxes on non-orthogonal faces
	IRcflb int // reconstruct the cell value at boundary faces

	ImVisf int // face viscosity averaging: 0 arithmetic, 1 harmonic

	NSwRsm int     // sweeps of the iterative solve driver
	EpsRsm float64 // sweep convergence threshold, relative to the RHS norm
	Epsilo float64 // linear solver tolerance, relative to the RHS norm

	NSwRgr int     // gradient reconstruction sweeps
	EpsRgr float64 // gradient reconstruction threshold
}

// DefaultParams returns the standard controls of an implicit
// convected and diffused scalar.
func DefaultParams() EquationParams {
	return EquationParams{
		IConv:   1,
		IDiff:   1,
		IdtVar:  0,
		Theta:   1,
		IMasac:  1,
		BlendCv: 1,
		IRcflu:  1,
		IRcflb:  1,
		NSwRsm:  1,
		EpsRsm:  1e-8,
		Epsilo:  1e-8,
		NSwRgr:  100,
		EpsRgr:  1e-5,
	}
}
