// cmd/icepeak-token is a standalone operator utility that mints JWT bearer
// tokens granting access to a set of path prefixes.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"icepeak/internal/auth"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	secret   string
	pathsArg string
	ttl      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "icepeak-token",
	Short: "Mint a JWT bearer token for an Icepeak server",
	RunE:  runMint,
}

func init() {
	rootCmd.Flags().StringVar(&secret, "secret", "", "HMAC secret matching the server's --jwt-secret (required)")
	rootCmd.Flags().StringVar(&pathsArg, "paths", "", "Comma-separated list of path prefixes to grant, e.g. \"a/b,c\" (required)")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.MarkFlagRequired("secret")
	rootCmd.MarkFlagRequired("paths")
}

func runMint(cmd *cobra.Command, args []string) error {
	var paths []string
	for _, p := range strings.Split(pathsArg, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("--paths must name at least one path prefix")
	}

	token, err := auth.Mint(secret, paths, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	fmt.Println(token)
	return nil
}
