/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/spf13/cobra"
)

// lsCmd represents the ls command
var lsCmd = &cobra.Command{
	Use:   "ls [room]",
	Short: "Lists rooms, or who is online in a room.",
	Long: `Without arguments, lists the active rooms you may join. With a room,
prints its details and the users currently online.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 {
			showRoom(args[0])
			return
		}

		var res struct {
			Rooms []domain.Room `json:"rooms"`
		}
		if err := callAPI(http.MethodGet, "/rooms", nil, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing rooms: %v\n", err)
			return
		}
		if len(res.Rooms) == 0 {
			fmt.Println("No rooms.")
			return
		}
		for _, room := range res.Rooms {
			fmt.Printf("%4d  %-7s  %3d/%-3d  %s  %s\n",
				room.LegacyID, room.Type, len(room.Participants), room.Capacity,
				room.CreatedAt.Local().Format("01/02 15:04"), room.Name)
		}
	},
}

func showRoom(ref string) {
	var room domain.Room
	if err := callAPI(http.MethodGet, roomPath(ref), nil, &room); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading room %s: %v\n", ref, err)
		return
	}
	var presence struct {
		OnlineCount int      `json:"online_count"`
		Users       []string `json:"users"`
	}
	if err := callAPI(http.MethodGet, roomPath(ref, "presence"), nil, &presence); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading presence of %s: %v\n", ref, err)
		return
	}
	fmt.Printf("id:          %s\n", room.ID)
	fmt.Printf("name:        %s (%s)\n", room.Name, room.Type)
	if room.Description != "" {
		fmt.Printf("description: %s\n", room.Description)
	}
	fmt.Printf("creator:     %s\n", room.Creator)
	fmt.Printf("admins:      %s\n", joinUsers(room.Admins))
	fmt.Printf("online:      %d %s\n", presence.OnlineCount, strings.Join(presence.Users, ", "))
}

func joinUsers(users []domain.UserID) string {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.String()
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
