package cmd

import (
	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/digest"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var header database.BlockHeader

// hashCmd represents the hash command
var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the digest of a block header",
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, err := digest.Retrieve(hashStrategy)
		if err != nil {
			return err
		}

		hash := digest.String(strategy, header.PreImage())

		c := color.New(color.FgRed)
		if database.IsHashSolved(difficulty, hash) {
			c = color.New(color.FgGreen)
		}
		c.Fprintln(cmd.OutOrStdout(), hash)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.Flags().Uint64Var(&header.Number, "index", 0, "Block index.")
	hashCmd.Flags().Uint64Var(&header.TimeStamp, "timestamp", 0, "Block timestamp in unix seconds.")
	hashCmd.Flags().StringVar(&header.TransRoot, "root", "", "Merkle root of the block transactions.")
	hashCmd.Flags().StringVar(&header.PrevBlockHash, "prev", "0", "Hash of the previous block.")
	hashCmd.Flags().Uint64Var(&header.Nonce, "nonce", 0, "Block nonce.")
}
