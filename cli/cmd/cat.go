/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/spf13/cobra"
)

var (
	catLimit  int
	catBefore string
	catSince  string
)

// catCmd represents the cat command
var catCmd = &cobra.Command{
	Use:   "cat <room>",
	Short: "Prints the message history of a room.",
	Long: `Prints a page of the room history, oldest first. --before pages backwards
from a timestamp and --since reads forward from one (RFC 3339).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(catLimit))
		if catBefore != "" {
			q.Set("before", catBefore)
		}
		if catSince != "" {
			q.Set("since", catSince)
		}
		var page struct {
			Messages []domain.Message `json:"messages"`
		}
		if err := callAPI(http.MethodGet, roomPath(args[0], "messages")+"?"+q.Encode(), nil, &page); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			return
		}
		for _, m := range page.Messages {
			fmt.Printf("%s  #%s\n", formatMessage(m), m.ID)
		}
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().IntVarP(&catLimit, "limit", "n", domain.DefaultPageSize, "page size")
	catCmd.Flags().StringVar(&catBefore, "before", "", "only messages before this time")
	catCmd.Flags().StringVar(&catSince, "since", "", "only messages after this time")
}
