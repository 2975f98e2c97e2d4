/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gofv/config"
	"github.com/notargets/gofv/insitu"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/mesh/halo"
	"github.com/notargets/gofv/transport"
	"github.com/notargets/gofv/utils"
)

type WallDistModel struct {
	CaseFile string
	Graph    bool
	Delay    time.Duration
	Profile  bool
}

// WallDistCmd represents the walldist command
var WallDistCmd = &cobra.Command{
	Use:   "walldist",
	Short: "Compute the wall distance field of a case and export it",
	Long: `Compute the wall distance field of a case and export it.

The case file names the mesh source, the number of domains and the
boundary type of each boundary group. Faces typed as walls drive the
distance equation. Results land as tree dumps in the output directory
of the case and, with -g, as a live plot of the wall patch.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		fmt.Println("walldist called")
		md := &WallDistModel{}
		if md.CaseFile, err = cmd.Flags().GetString("caseFile"); err != nil {
			panic(err)
		}
		md.Graph, _ = cmd.Flags().GetBool("graph")
		dr, _ := cmd.Flags().GetInt("delay")
		md.Delay = time.Duration(dr) * time.Millisecond
		md.Profile, _ = cmd.Flags().GetBool("profile")
		cp := processInput(md.CaseFile)
		RunWallDist(md, cp)
	},
}

// processInput loads and parses the case file, printing an example and
// exiting when none was given.
func processInput(caseFile string) (cp *config.CaseParameters) {
	var (
		err error
	)
	if len(caseFile) == 0 {
		err = fmt.Errorf("must supply a case file (-F, --caseFile) in YAML format")
		fmt.Printf("error: %s\n", err.Error())
		exampleFile := `
########################################
Title: "Channel"
Nx: 32
Ny: 8
Nz: 8
Lx: 4.
Ly: 1.
Lz: 1.
NDomains: 2
BCs:
  zmin: smoothwall
  zmax: smoothwall
OutputDir: out
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	var data []byte
	if data, err = os.ReadFile(caseFile); err != nil {
		panic(err)
	}
	cp = &config.CaseParameters{}
	if err = cp.Parse(data); err != nil {
		panic(err)
	}
	return
}

func init() {
	rootCmd.AddCommand(WallDistCmd)
	WallDistCmd.Flags().StringP("caseFile", "F", "", "YAML case file naming the mesh, domains and boundary types")
	WallDistCmd.Flags().BoolP("graph", "g", false, "display the wall patch colored by distance")
	WallDistCmd.Flags().IntP("delay", "d", 5000, "milliseconds to hold the plot open")
}

func RunWallDist(md *WallDistModel, cp *config.CaseParameters) {
	if md.Profile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}
	cp.Print()
	global, err := cp.BuildMesh()
	if err != nil {
		panic(err)
	}
	np := cp.Domains()
	part := make([]int, global.NCells)
	if np > 1 {
		mp := mesh.NewPartitioner(global, mesh.DefaultPartitionConfig(int32(np)))
		if part, err = mp.Partition(); err != nil {
			panic(err)
		}
	}
	utils.NewWorld(np).Run(func(c *utils.Comm) {
		if err := wallDistDomain(md, cp, global, part, c); err != nil {
			fmt.Printf("rank %d: walldist failed: %s\n", c.Rank(), err.Error())
		}
	})
	fmt.Printf("%s\n", utils.GetMemUsage())
}

// wallDistDomain runs one domain of the wall distance case, from mesh
// distribution through the exports. Collective.
func wallDistDomain(md *WallDistModel, cp *config.CaseParameters,
	global *mesh.Mesh, part []int, c *utils.Comm) error {

	local, gs := mesh.Distribute(global, part, c)
	h := halo.Build(local, gs, c)
	q := mesh.ComputeQuantities(local, h)
	if c.Rank() == 0 {
		local.PrintStatistics()
	}

	bTypes, err := cp.BoundaryTypes(local)
	if err != nil {
		return err
	}
	var walls []int
	for f := 0; f < local.NBFaces; f++ {
		if bTypes[f].IsWall() {
			walls = append(walls, f)
		}
	}
	nWalls := c.AllReduceInt64(int64(len(walls)), utils.OpSum)
	if nWalls == 0 {
		return fmt.Errorf("case types no boundary face as a wall")
	}

	wd := transport.NewWallDistance()
	cp.Apply(&wd.Params)
	cp.Apply(&wd.YPParams)
	if err = wd.Compute(local, q, h, c, bTypes); err != nil {
		return err
	}

	// Vertex rendition of the distance for the surface exports
	vtxDist := make([]float64, local.NVertices)
	vi := transport.NewVertexInterp(local, q)
	if err = vi.ToVertices(transport.VtxShepard, wd.Dist, 1, vtxDist); err != nil {
		return err
	}

	if len(cp.OutputDir) != 0 {
		if err = dumpWallDist(cp, local, walls, wd.Dist, vtxDist, c); err != nil {
			return err
		}
	}
	if md.Graph && c.Rank() == 0 && len(walls) > 0 {
		plotWallDist(md, local, walls, vtxDist)
	}
	return nil
}

// dumpWallDist writes one tree dump per rank with the volume mesh, the
// wall patch and the distance fields. Collective.
func dumpWallDist(cp *config.CaseParameters, local *mesh.Mesh, walls []int,
	dist, vtxDist []float64, c *utils.Comm) error {

	if err := os.MkdirAll(cp.OutputDir, 0o755); err != nil {
		return err
	}
	rt := insitu.NewDumpRuntime(cp.OutputDir, "walldist", c)
	w := insitu.NewWriter("walldist", rt, c)
	w.ScriptDir = cp.ScriptDir

	w.ExportVolume("volume", local)
	w.ExportElementField("volume", "wall_distance", dist, 1)
	if len(walls) > 0 {
		w.ExportBoundary("walls", local, walls)
		w.ExportVertexField("walls", "wall_distance", vtxDist)
	}
	w.SetTime(0, 0)
	if err := w.Flush(); err != nil {
		return err
	}
	return w.Finalize()
}

// plotWallDist shows the local wall patch colored by the distance of
// its vertices. Rank 0 only.
func plotWallDist(md *WallDistModel, local *mesh.Mesh, walls []int, vtxDist []float64) {
	crt := insitu.NewChartRuntime(1024, 1024)
	crt.Mesh = "walls"
	crt.Field = "wall_distance"
	crt.Delay = md.Delay
	cw := insitu.NewWriter("plot", crt, nil)
	cw.ScriptDir = ""
	cw.ExportBoundary("walls", local, walls)
	cw.ExportVertexField("walls", "wall_distance", vtxDist)
	cw.SetTime(0, 0)
	if err := cw.Flush(); err != nil {
		fmt.Printf("plot failed: %s\n", err.Error())
	}
}
