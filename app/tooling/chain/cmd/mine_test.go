package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func testGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.Difficulty = 2
	return gen
}

func TestMineSession(t *testing.T) {
	type table struct {
		name   string
		input  string
		blocks int
		mined  int
		bye    bool
	}

	tt := []table{
		{name: "exit", input: "Alice pays Bob,Bob pays Carol\nexit\n", blocks: 9, mined: 2, bye: true},
		{name: "exit among txs", input: "a,exit,b\n", blocks: 9, mined: 1, bye: true},
		{name: "block limit", input: "a\nb\nc\n", blocks: 2, mined: 3},
		{name: "end of input", input: "a,b,c\n", blocks: 9, mined: 2},
	}

	t.Log("Given the need to mine blocks from an interactive session.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling the %s session.", testID, tst.name)
			{
				f := func(t *testing.T) {
					var out bytes.Buffer
					if err := mine(context.Background(), testGenesis(), strings.NewReader(tst.input), &out, tst.blocks); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to run the session: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to run the session.", success, testID)

					if got := strings.Count(out.String(), "current_hash:"); got != tst.mined {
						t.Fatalf("\t%s\tTest %d:\tShould mine %d blocks, got %d.", failed, testID, tst.mined, got)
					}
					t.Logf("\t%s\tTest %d:\tShould mine %d blocks.", success, testID, tst.mined)

					if bye := strings.Contains(out.String(), "See you later!"); bye != tst.bye {
						t.Fatalf("\t%s\tTest %d:\tShould say goodbye only on exit.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould say goodbye only on exit.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func TestGenesisBlock(t *testing.T) {
	t.Log("Given the need to start every session from the same genesis.")
	{
		t.Logf("\tTest 0:\tWhen the session ends immediately.")
		{
			var out bytes.Buffer
			if err := mine(context.Background(), testGenesis(), strings.NewReader("exit\n"), &out, 9); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to run the session: %v", failed, err)
			}

			for _, want := range []string{"Block 0", `["First Transaction"]`, "previous_hash: 0\n"} {
				if !strings.Contains(out.String(), want) {
					t.Fatalf("\t%s\tTest 0:\tShould print %q in:\n%s", failed, want, out.String())
				}
			}
			t.Logf("\t%s\tTest 0:\tShould print the genesis block.", success)
		}
	}
}
