package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/ardanlabs/merklechain/foundation/blockchain/chain"
	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// exitWord ends an interactive session when entered as a transaction.
const exitWord = "exit"

var blocks int

// mineCmd represents the mine command
var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine the genesis block and then blocks read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		return mine(ctx, genesisFromFlags(), cmd.InOrStdin(), cmd.OutOrStdout(), blocks)
	},
}

func init() {
	rootCmd.AddCommand(mineCmd)
	mineCmd.Flags().IntVarP(&blocks, "blocks", "b", 9, "Number of blocks to mine after the genesis block.")
}

// mine runs an interactive session: the genesis block is mined first, then
// every line read is split on commas into the transactions of the next block.
func mine(ctx context.Context, gen genesis.Genesis, in io.Reader, out io.Writer, blocks int) error {
	ch, err := chain.New(chain.Config{
		Genesis: gen,
	})
	if err != nil {
		return err
	}
	defer ch.Shutdown()

	blk, err := ch.Genesis(ctx)
	if err != nil {
		return fmt.Errorf("mining genesis: %w", err)
	}
	printBlock(out, blk)

	scanner := bufio.NewScanner(in)
	for i := 1; i <= blocks; i++ {
		fmt.Fprintf(out, "Type '%s' to quit.\n", exitWord)
		fmt.Fprintf(out, "Enter transactions separated by ',' for block number %d:\n", i)

		if !scanner.Scan() {
			break
		}

		trans := strings.Split(strings.TrimSpace(scanner.Text()), ",")
		if slices.Contains(trans, exitWord) {
			color.New(color.FgYellow).Fprintln(out, "See you later!")
			break
		}

		blk, err := ch.MineBlock(ctx, trans)
		if err != nil {
			return fmt.Errorf("mining block %d: %w", i, err)
		}
		printBlock(out, blk)
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return ch.Validate()
}

func printBlock(out io.Writer, blk database.Block) {
	title := color.New(color.FgCyan, color.Bold)
	hash := color.New(color.FgGreen)

	title.Fprintf(out, "Block %d\n", blk.Header.Number)
	fmt.Fprintf(out, "  timestamp:     %d\n", blk.Header.TimeStamp)
	fmt.Fprintf(out, "  transactions:  %q\n", blk.Trans.Values())
	fmt.Fprintf(out, "  merkle_root:   %s\n", blk.Header.TransRoot)
	fmt.Fprintf(out, "  previous_hash: %s\n", blk.Header.PrevBlockHash)
	fmt.Fprintf(out, "  nonce:         %d\n", blk.Header.Nonce)
	hash.Fprintf(out, "  current_hash:  %s\n", blk.Hash)
}
