/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ponyo877/huddle/server/auth"
	"github.com/spf13/cobra"
)

// idCmd represents the id command
var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Prints the identity carried by the configured token.",
	Long: `Prints the email, display name and expiry of the configured token. The
token is decoded locally; only the server can verify it.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if token == "" {
			fmt.Fprintln(os.Stderr, "No token configured, set --token or HUDDLE_TOKEN")
			return
		}
		var claims auth.Claims
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			fmt.Fprintf(os.Stderr, "Error decoding token: %v\n", err)
			return
		}
		email := claims.Email
		if email == "" {
			email = claims.Subject
		}
		fmt.Printf("Email:       %s\n", email)
		fmt.Printf("DisplayName: %s\n", claims.Name)
		if claims.ExpiresAt != nil {
			fmt.Printf("Expires:     %s\n", claims.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
	},
}

func init() {
	rootCmd.AddCommand(idCmd)
}
