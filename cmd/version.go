package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridrun/gridrun/lib/consts"
)

func getVersionCmd(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show application version",
		Long:  "Show the application version and exit.",
		Run: func(_ *cobra.Command, _ []string) {
			printToStdout(gs, fmt.Sprintf("gridrun v%s\n", consts.FullVersion()))
		},
	}
}
