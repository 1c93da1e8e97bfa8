package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/banner"
	"github.com/ternarybob/examforge/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// version needs no configuration
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		banner.Print("ExamForge", common.GetVersion())
		fmt.Printf("examforge version %s\n", common.GetFullVersion())
	},
}
