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

var inviteCmd = &cobra.Command{
	Use:   "invite <room> <email>",
	Short: "Invites a user to a room you administer.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var res struct {
			Invitation        domain.Invitation `json:"invitation"`
			Notified          bool              `json:"notified"`
			NotificationError string            `json:"notification_error"`
		}
		if err := callAPI(http.MethodPost, roomPath(args[0], "invitations"), map[string]string{"email": args[1]}, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error inviting %s: %v\n", args[1], err)
			return
		}
		fmt.Printf("Invited %s, token %s (expires %s)\n",
			res.Invitation.Invitee, res.Invitation.Token, res.Invitation.ExpiresAt.Local().Format("01/02 15:04"))
		if !res.Notified {
			fmt.Fprintf(os.Stderr, "The invitation notice was not sent: %s\n", res.NotificationError)
		}
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <token>",
	Short: "Accepts a room invitation.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var res struct {
			Room domain.Room `json:"room"`
		}
		if err := callAPI(http.MethodPost, "/invitations/"+url.PathEscape(args[0])+"/accept", nil, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error accepting invitation: %v\n", err)
			return
		}
		fmt.Printf("You joined %s\n", res.Room.Name)
	},
}

var declineCmd = &cobra.Command{
	Use:   "decline <token>",
	Short: "Declines a room invitation.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := callAPI(http.MethodPost, "/invitations/"+url.PathEscape(args[0])+"/decline", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error declining invitation: %v\n", err)
			return
		}
		fmt.Println("Invitation declined")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Ends all of your live room sessions.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var res struct {
			Rooms []string `json:"rooms"`
		}
		if err := callAPI(http.MethodPost, "/logout", nil, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error logging out: %v\n", err)
			return
		}
		fmt.Printf("Left %d room(s)\n", len(res.Rooms))
	},
}

func init() {
	rootCmd.AddCommand(inviteCmd, acceptCmd, declineCmd, logoutCmd)
}
