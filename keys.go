package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zsprackett/display/internal/webserver"
)

var hashkeyCmd = &cobra.Command{
	Use:   "hashkey",
	Short: "Hash a producer key for server.auth.producerKeyHash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := readSecret(cmd, "Producer key: ")
		if err != nil {
			return err
		}
		if key == "" {
			return errors.New("empty key")
		}
		hash, err := webserver.HashProducerKey(key)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

// readSecret prompts without echo on a terminal and reads one line from
// stdin otherwise.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return string(pw), nil
}

var (
	tokenSecret   string
	tokenViewer   string
	tokenTTL      time.Duration
	tokenGenerate bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a viewer access token",
	Long: `Sign a token for GET /events and GET /ws with server.auth.jwtSecret.
With --generate, print a fresh secret instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenGenerate {
			secret, err := webserver.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		}
		secret := tokenSecret
		if secret == "" {
			secret = loadConfig().Server.Auth.JWTSecret
		}
		if secret == "" {
			return errors.New("no secret: set server.auth.jwtSecret or pass --secret")
		}
		tok, err := webserver.IssueAccessToken(secret, tokenViewer, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Signing secret (defaults to the config)")
	tokenCmd.Flags().StringVar(&tokenViewer, "viewer", "viewer", "Viewer name carried in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	tokenCmd.Flags().BoolVar(&tokenGenerate, "generate", false, "Print a new random secret")
}
