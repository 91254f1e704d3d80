/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

const joinHelp = `/typing [off]          announce typing
/read <id>              send a read receipt
/reply <id> <text>      reply to a message
/image <url> [caption]  post an image
/file <url> [caption]   post a file
/offer <user> <json>    send an audio call offer
/video <user> <json>    send a video call offer
/answer <user> <json>   send a call answer
/ice <user> <json>      send an ICE candidate
/end <user>             hang up or decline a call
/ping                   ping the server
/leave, /quit           leave the room`

// joinCmd represents the join command
var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Joins a room and chats interactively.",
	Long: `Joins a room by id, number or name. Lines are sent as chat messages;
lines starting with / are commands:

` + joinHelp,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stream, err := openRoom(ctx, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}

		done := make(chan error, 1)
		go func() {
			done <- printEvents(os.Stdout, stream)
		}()

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			close(lines)
		}()

		for {
			select {
			case err := <-done:
				if err != nil && ctx.Err() == nil {
					fmt.Fprintf(os.Stderr, "Stream closed: %v\n", err)
				}
				return
			case line, ok := <-lines:
				if !ok {
					line = "/leave"
				}
				req, err := parseInput(line)
				if errors.Is(err, errQuit) {
					req = map[string]interface{}{"type": "leave"}
				} else if err != nil {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				if req == nil {
					continue
				}
				if err := sendRequest(stream, req); err != nil {
					fmt.Fprintf(os.Stderr, "Error sending: %v\n", err)
					return
				}
				if req["type"] == "leave" {
					stream.CloseSend()
					<-done
					return
				}
			}
		}
	},
}

// parseInput turns one line of input into a request frame. It returns a nil
// frame for blank lines and errQuit for /quit.
func parseInput(line string) (map[string]interface{}, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return map[string]interface{}{"type": "message", "message": line}, nil
	}

	words, err := shellwords.Parse(line[1:])
	if err != nil {
		return nil, fmt.Errorf("could not parse command: %w", err)
	}
	if len(words) == 0 {
		return nil, errors.New("empty command")
	}
	need := func(n int) error {
		if len(words) < n+1 {
			return fmt.Errorf("/%s needs %d argument(s)", words[0], n)
		}
		return nil
	}
	rest := func(from int) string {
		if len(words) <= from {
			return ""
		}
		return strings.Join(words[from:], " ")
	}

	switch words[0] {
	case "quit", "exit":
		return nil, errQuit
	case "leave":
		return map[string]interface{}{"type": "leave"}, nil
	case "ping":
		return map[string]interface{}{"type": "ping"}, nil
	case "typing":
		return map[string]interface{}{"type": "typing", "is_typing": rest(1) != "off"}, nil
	case "read":
		if err := need(1); err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "read_receipt", "message_id": words[1]}, nil
	case "reply":
		if err := need(2); err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "message", "reply_to": words[1], "message": rest(2)}, nil
	case "image", "file":
		if err := need(1); err != nil {
			return nil, err
		}
		req := map[string]interface{}{"type": "message", "kind": words[0], "message": rest(2)}
		req[words[0]+"_url"] = words[1]
		return req, nil
	case "end":
		if err := need(1); err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "call_end", "target_id": words[1]}, nil
	case "offer", "video", "answer", "ice":
		if err := need(2); err != nil {
			return nil, err
		}
		payload := json.RawMessage(rest(2))
		if !json.Valid(payload) {
			return nil, fmt.Errorf("/%s payload must be JSON", words[0])
		}
		switch words[0] {
		case "offer":
			return map[string]interface{}{"type": "call_offer", "receiver_id": words[1], "offer": payload}, nil
		case "video":
			return map[string]interface{}{"type": "call_offer", "receiver_id": words[1], "call_type": "video", "offer": payload}, nil
		case "answer":
			return map[string]interface{}{"type": "call_answer", "caller_id": words[1], "answer": payload}, nil
		default:
			return map[string]interface{}{"type": "ice_candidate", "target_id": words[1], "candidate": payload}, nil
		}
	case "help":
		fmt.Println(joinHelp)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown command /%s, try /help", words[0])
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
