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

var (
	roomType        string
	roomDescription string
	roomCapacity    int
)

// mkroomCmd represents the mkroom command
var mkroomCmd = &cobra.Command{
	Use:   "mkroom <name>",
	Short: "Creates a room.",
	Long:  `Creates a public, private or group room. You become its creator and first admin.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var room domain.Room
		body := map[string]interface{}{
			"name":        args[0],
			"type":        roomType,
			"description": roomDescription,
			"capacity":    roomCapacity,
		}
		if err := callAPI(http.MethodPost, "/rooms", body, &room); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating room %s: %v\n", args[0], err)
			return
		}
		fmt.Printf("Room %s created (id %s, #%d)\n", room.Name, room.ID, room.LegacyID)
	},
}

func init() {
	rootCmd.AddCommand(mkroomCmd)
	mkroomCmd.Flags().StringVarP(&roomType, "type", "t", "public", "public, private or group")
	mkroomCmd.Flags().StringVarP(&roomDescription, "description", "d", "", "room description")
	mkroomCmd.Flags().IntVarP(&roomCapacity, "capacity", "c", 0, "maximum online users (0 for the default)")
}
