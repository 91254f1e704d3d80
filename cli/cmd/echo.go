/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/spf13/cobra"
)

// echoCmd represents the echo command
var echoCmd = &cobra.Command{
	Use:   "echo <text> <room>",
	Short: "Posts one message to a room.",
	Long: `Joins the room, posts the text and leaves once the server has broadcast it.
The message id is printed on success.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		text, room := args[0], args[1]

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		stream, err := openRoom(ctx, room)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		defer stream.CloseSend()

		sent := false
		for {
			event, err := recvEvent(stream)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error writing to %s: %v\n", room, err)
				return
			}
			switch event.Type {
			case domain.EventError:
				fmt.Fprintf(os.Stderr, "Error writing to %s: %s (%s)\n", room, event.Error, event.Code)
				return
			case domain.EventHistory:
				if sent {
					continue
				}
				if err := sendRequest(stream, map[string]interface{}{"type": "message", "message": text}); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing to %s: %v\n", room, err)
					return
				}
				sent = true
			case domain.EventChatMessage:
				if sent && event.Message == text {
					fmt.Println(event.MessageID)
					_ = sendRequest(stream, map[string]interface{}{"type": "leave"})
					return
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(echoCmd)
}
