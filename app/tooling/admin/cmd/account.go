package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account [name]",
	Short: "Print one account, or all accounts when no name is given.",
	Args:  cobra.MaximumNArgs(1),
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	path := "/v1/accounts"
	if len(args) == 1 {
		path += "/" + args[0]
	}

	if err := query(path); err != nil {
		log.Fatal(err)
	}
}
