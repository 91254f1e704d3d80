/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/spf13/cobra"
)

// callsCmd represents the calls command
var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Lists the calls you made or received.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		var res struct {
			Calls []domain.Call `json:"calls"`
		}
		if err := callAPI(http.MethodGet, fmt.Sprintf("/calls?limit=%d", limit), nil, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing calls: %v\n", err)
			return
		}
		if len(res.Calls) == 0 {
			fmt.Println("No calls.")
			return
		}
		for _, c := range res.Calls {
			fmt.Printf("%s  %-5s  %-9s  %8s  %s -> %s\n",
				c.StartedAt.Local().Format("01/02 15:04"), c.Type, c.Status,
				c.Duration.Round(time.Second), c.Caller, c.Receiver)
		}
	},
}

func init() {
	callsCmd.Flags().IntP("limit", "n", 20, "number of calls to show")
	rootCmd.AddCommand(callsCmd)
}
