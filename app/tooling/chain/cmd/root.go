// Package cmd contains the chain tooling commands.
package cmd

import (
	"os"

	"github.com/ardanlabs/merklechain/foundation/blockchain/digest"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/spf13/cobra"
)

var (
	difficulty   uint
	maxNonce     uint64
	workers      int
	hashStrategy string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "chain",
	Short:        "Mine and inspect a merkle chain",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	def := genesis.Default()

	rootCmd.PersistentFlags().UintVarP(&difficulty, "difficulty", "d", def.Difficulty, "Number of leading zeros a block hash needs.")
	rootCmd.PersistentFlags().Uint64Var(&maxNonce, "max-nonce", 0, "Largest nonce to try, 0 searches the full range.")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", def.Workers, "Number of goroutines searching the nonce space.")
	rootCmd.PersistentFlags().StringVar(&hashStrategy, "hash", digest.StrategySHA256, "Hash strategy: sha256 or keccak256.")
}

// genesisFromFlags builds the genesis settings from the persistent flags.
func genesisFromFlags() genesis.Genesis {
	gen := genesis.Default()
	gen.Difficulty = difficulty
	gen.MaxNonce = maxNonce
	gen.Workers = workers
	gen.HashStrategy = hashStrategy
	return gen
}
