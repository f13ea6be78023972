package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gmail-relay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gmail-relay version %s\n", version)
		},
	}
}
