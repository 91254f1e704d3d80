/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [key value]",
	Short: "Shows or sets client configuration.",
	Long: `Without arguments, prints the effective configuration. With a key and a
value, stores the setting in the config file (token, grpc_server_address,
http_server_address).`,
	Args: cobra.MatchAll(cobra.RangeArgs(0, 2), func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return fmt.Errorf("config needs both a key and a value")
		}
		return nil
	}),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Printf("config file:         %s\n", viper.ConfigFileUsed())
			fmt.Printf("grpc_server_address: %s\n", grpcServerAddress)
			fmt.Printf("http_server_address: %s\n", httpServerAddress)
			fmt.Printf("token:               %s\n", maskToken(token))
			return
		}

		key, value := args[0], args[1]
		switch key {
		case tokenKey, grpcServerAddressKey, httpServerAddressKey:
		default:
			fmt.Fprintf(os.Stderr, "Unknown key %s\n", key)
			return
		}
		viper.Set(key, value)
		err := viper.WriteConfig()
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			err = viper.SafeWriteConfig()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			return
		}
		fmt.Printf("%s updated\n", key)
	},
}

func maskToken(t string) string {
	if len(t) <= 12 {
		return "(hidden)"
	}
	return t[:6] + "..." + t[len(t)-6:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}
