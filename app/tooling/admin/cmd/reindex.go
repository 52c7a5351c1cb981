package cmd

import (
	"fmt"
	"log"

	"github.com/crescentlabs/crescent/foundation/chain/blocklog"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/state"
	"github.com/spf13/cobra"
)

var (
	dbPath      string
	genesisFile string
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the working state from the durable block log.",
	Long: `Rebuild the working state from the durable block log. The node must not
be running, the replay takes an exclusive lock on the log.`,
	Run: reindexRun,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().StringVarP(&dbPath, "dbpath", "d", "zblock/blocks.db", "Path to the block log.")
	reindexCmd.Flags().StringVarP(&genesisFile, "genesis", "g", "zblock/genesis.json", "Path to the genesis file.")
}

func reindexRun(cmd *cobra.Command, args []string) {
	gen, err := genesis.Load(genesisFile)
	if err != nil {
		log.Fatal(err)
	}

	blockLog, err := blocklog.Open(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer blockLog.Close()

	// Opening the controller replays every block in the log through full
	// state application.
	st, err := state.New(state.Config{
		Genesis:  gen,
		BlockLog: blockLog,
		EvHandler: func(v string, args ...any) {
			fmt.Printf(v+"\n", args...)
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	gp := st.Gprops()
	fmt.Printf("replayed to block %d [%s]\n", gp.HeadBlockNumber, gp.HeadBlockID)
}
