/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/spf13/cobra"
)

// mvCmd represents the mv command
var mvCmd = &cobra.Command{
	Use:   "mv <room> <new_name>",
	Short: "Renames a room.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var room domain.Room
		if err := callAPI(http.MethodPatch, roomPath(args[0]), map[string]string{"name": args[1]}, &room); err != nil {
			fmt.Fprintf(os.Stderr, "Error renaming %s: %v\n", args[0], err)
			return
		}
		fmt.Printf("Room %s renamed to %s\n", room.ID, room.Name)
	},
}

func init() {
	rootCmd.AddCommand(mvCmd)
}
