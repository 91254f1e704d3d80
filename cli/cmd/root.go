/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	pb "github.com/ponyo877/huddle/grpc"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	cfgFile           string
	token             string
	grpcServerAddress string
	httpServerAddress string
	roomClient        pb.RoomServiceClient
	grpcConn          *grpc.ClientConn
)

const (
	tokenKey             = "token"
	grpcServerAddressKey = "grpc_server_address"
	httpServerAddressKey = "http_server_address"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Chat in huddle rooms from the terminal.",
	Long: `huddle is a terminal client for the huddle chat server.

Room streams (join, tail -f, echo) use the gRPC endpoint; room management,
history and invitations use the REST API. Run without arguments for an
interactive shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		conn, err := grpc.NewClient(grpcServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("did not connect to gRPC server: %w", err)
		}
		grpcConn = conn
		roomClient = pb.NewRoomServiceClient(conn)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if grpcConn != nil {
			return grpcConn.Close()
		}
		return nil
	},
}

// Execute runs a single command when arguments are given and the
// interactive shell otherwise. It is called by main.main().
func Execute() {
	if len(os.Args) > 1 {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	fmt.Println("entering interactive mode, type 'exit' to quit")
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("huddle> ")
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" || (err != nil && line == "") {
			return
		}
		if line == "" {
			continue
		}
		args, perr := shellwords.Parse(line)
		if perr != nil {
			fmt.Fprintln(os.Stderr, "Error parsing command:", perr)
			continue
		}
		rootCmd.SetArgs(args)
		// errors are already printed by cobra; the shell keeps running
		_ = rootCmd.Execute()
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.huddle.yaml)")
	rootCmd.PersistentFlags().String("token", "", "bearer token issued by the huddle server")
	rootCmd.PersistentFlags().String("grpc-server", "localhost:50051", "address of the gRPC endpoint")
	rootCmd.PersistentFlags().String("http-server", "http://localhost:8080", "base URL of the REST endpoint")

	viper.BindPFlag(tokenKey, rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag(grpcServerAddressKey, rootCmd.PersistentFlags().Lookup("grpc-server"))
	viper.BindPFlag(httpServerAddressKey, rootCmd.PersistentFlags().Lookup("http-server"))
	viper.SetDefault(grpcServerAddressKey, "localhost:50051")
	viper.SetDefault(httpServerAddressKey, "http://localhost:8080")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// looks for $HOME/.huddle.yaml
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".huddle")
	}

	viper.SetEnvPrefix("HUDDLE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}

	token = viper.GetString(tokenKey)
	grpcServerAddress = viper.GetString(grpcServerAddressKey)
	httpServerAddress = viper.GetString(httpServerAddressKey)
}
