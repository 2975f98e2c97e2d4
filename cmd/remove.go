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

	"github.com/notargets/gofv/mesh"
)

// RemoveCmd represents the remove command
var RemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove cells from a case mesh",
	Long: `Remove cells from a case mesh.

Cells of the selected group are cut out and the faces left exposed by
the cut become boundary faces of a new group. With -b, cells flagged
by the quality criteria are cut as well. Write the result with -o and
feed it back as the MeshFile of later cases.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		fmt.Println("remove called")
		caseFile, err := cmd.Flags().GetString("caseFile")
		if err != nil {
			panic(err)
		}
		group, _ := cmd.Flags().GetString("group")
		pruneBad, _ := cmd.Flags().GetBool("badCells")
		meshOut, _ := cmd.Flags().GetString("meshOut")
		if len(group) == 0 && !pruneBad {
			fmt.Printf("error: nothing to remove, supply a group (-G) or -b\n")
			return
		}
		cp := processInput(caseFile)
		cp.Print()

		m, err := cp.BuildMesh()
		if err != nil {
			panic(err)
		}
		if len(group) != 0 {
			if err = mesh.RemoveCellsByGroup(m, nil, nil, group); err != nil {
				fmt.Printf("error: removal failed: %s\n", err.Error())
				return
			}
		}
		if pruneBad {
			q := mesh.ComputeQuantities(m, nil)
			flagged := mesh.FlagBadCells(m, q)
			n := 0
			for _, bad := range flagged {
				if bad {
					n++
				}
			}
			if n > 0 {
				if err = mesh.RemoveCells(m, nil, nil, flagged, "bad_cells"); err != nil {
					fmt.Printf("error: removal failed: %s\n", err.Error())
					return
				}
			}
			fmt.Printf("Removed %d cells flagged by the quality criteria\n", n)
		}
		m.PrintStatistics()
		if len(meshOut) != 0 {
			if err = m.SaveFile(meshOut); err != nil {
				panic(err)
			}
			fmt.Printf("Saved pruned mesh to %s\n", meshOut)
		}
	},
}

func init() {
	rootCmd.AddCommand(RemoveCmd)
	RemoveCmd.Flags().StringP("caseFile", "F", "", "YAML case file naming the mesh")
	RemoveCmd.Flags().StringP("group", "G", "", "cell group to remove")
	RemoveCmd.Flags().BoolP("badCells", "b", false, "also remove cells flagged by the quality criteria")
	RemoveCmd.Flags().StringP("meshOut", "o", "", "write the pruned mesh to this .gob file")
}
