/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/spf13/cobra"
)

var (
	follow    bool
	tailLines int
)

// tailCmd represents the tail command
var tailCmd = &cobra.Command{
	Use:   "tail [-f] [-n lines] <room>",
	Short: "Prints the latest messages of a room.",
	Long: `Prints the latest messages of a room. With -f, joins the room and keeps
printing new activity until interrupted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		room := args[0]

		if !follow {
			var page struct {
				Messages []domain.Message `json:"messages"`
			}
			path := fmt.Sprintf("%s?limit=%d", roomPath(room, "messages"), tailLines)
			if err := callAPI(http.MethodGet, path, nil, &page); err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", room, err)
				return
			}
			for _, m := range page.Messages {
				fmt.Println(formatMessage(m))
			}
			return
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		stream, err := openRoom(ctx, room)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if err := printEvents(os.Stdout, stream); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error receiving from %s: %v\n", room, err)
		}
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new activity")
	tailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "number of messages to print")
}
