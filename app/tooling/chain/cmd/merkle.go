package cmd

import (
	"fmt"

	"github.com/ardanlabs/merklechain/foundation/blockchain/digest"
	"github.com/ardanlabs/merklechain/foundation/blockchain/merkle"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showProof bool

// merkleCmd represents the merkle command
var merkleCmd = &cobra.Command{
	Use:   "merkle <tx>...",
	Short: "Print the merkle root of the transactions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, err := digest.Retrieve(hashStrategy)
		if err != nil {
			return err
		}

		tree, err := merkle.NewTree(args, merkle.WithHashStrategy(strategy))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintln(out, tree.RootHex())

		if !showProof {
			return nil
		}

		for _, tx := range args {
			proof, order, err := tree.Proof(tx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%q proof=%v order=%v\n", tx, proof, order)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(merkleCmd)
	merkleCmd.Flags().BoolVarP(&showProof, "proof", "p", false, "Print the inclusion proof of every transaction.")
}
