/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// rmCmd represents the rm command
var rmCmd = &cobra.Command{
	Use:   "rm <room>",
	Short: "Closes a room.",
	Long: `Deactivates a room. Connected users are disconnected and the room no
longer accepts connections. Its history is kept. Only admins may close a room.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := callAPI(http.MethodDelete, roomPath(args[0]), nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing %s: %v\n", args[0], err)
			return
		}
		fmt.Printf("Room %s closed\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
