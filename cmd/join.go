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

	"github.com/spf13/cobra"

	"github.com/notargets/gofv/mesh/join"
)

// JoinCmd represents the join command
var JoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Fuse coincident boundary faces of a case mesh into interior faces",
	Long: `Fuse coincident boundary faces of a case mesh into interior faces.

Boundary faces of the selected group (all of them when no group is
given) are compared, vertices inside each other's merge tolerance are
fused, and face pairs left with identical rings become interior.
Joining runs on the whole mesh in one domain; write the result with
-o and feed it back as the MeshFile of later cases.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		fmt.Println("join called")
		caseFile, err := cmd.Flags().GetString("caseFile")
		if err != nil {
			panic(err)
		}
		group, _ := cmd.Flags().GetString("group")
		fraction, _ := cmd.Flags().GetFloat64("fraction")
		meshOut, _ := cmd.Flags().GetString("meshOut")
		cp := processInput(caseFile)
		cp.Print()

		m, err := cp.BuildMesh()
		if err != nil {
			panic(err)
		}
		var sel []int
		if len(group) != 0 {
			sel = m.SelectBFacesByGroup(group)
			if len(sel) == 0 {
				fmt.Printf("error: group %q selects no boundary faces\n", group)
				return
			}
		} else {
			sel = make([]int, m.NBFaces)
			for f := range sel {
				sel[f] = f
			}
		}
		p := join.DefaultParams()
		if fraction > 0 {
			p.Fraction = fraction
		}
		if err = join.Join(m, sel, p, nil); err != nil {
			fmt.Printf("error: joining failed: %s\n", err.Error())
			return
		}
		m.PrintStatistics()
		if len(meshOut) != 0 {
			if err = m.SaveFile(meshOut); err != nil {
				panic(err)
			}
			fmt.Printf("Saved joined mesh to %s\n", meshOut)
		}
	},
}

func init() {
	rootCmd.AddCommand(JoinCmd)
	JoinCmd.Flags().StringP("caseFile", "F", "", "YAML case file naming the mesh")
	JoinCmd.Flags().StringP("group", "G", "", "boundary group to join, empty for all boundary faces")
	JoinCmd.Flags().Float64P("fraction", "t", 0, "merge tolerance as a fraction of the shortest adjacent edge")
	JoinCmd.Flags().StringP("meshOut", "o", "", "write the joined mesh to this .gob file")
}
