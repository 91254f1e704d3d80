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

// grepCmd represents the grep command
var grepCmd = &cobra.Command{
	Use:   "grep <pattern> <room>",
	Short: "Searches room messages with a regular expression.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		pattern, room := args[0], args[1]
		var page struct {
			Messages []domain.Message `json:"messages"`
		}
		path := roomPath(room, "messages") + "?q=" + url.QueryEscape(pattern)
		if err := callAPI(http.MethodGet, path, nil, &page); err != nil {
			fmt.Fprintf(os.Stderr, "Error searching %s: %v\n", room, err)
			return
		}
		for _, m := range page.Messages {
			fmt.Println(formatMessage(m))
		}
	},
}

func init() {
	rootCmd.AddCommand(grepCmd)
}
