package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sks/auth"
)

var passwdAlgorithm string

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Hash a password for the credentials file",
	Long: `Reads a password from the first line of standard input and prints its
hash in the format expected by the --credentials file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(password, auth.Algorithm(passwdAlgorithm))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passwdCmd)
	passwdCmd.Flags().StringVar(&passwdAlgorithm, "algorithm", string(auth.Bcrypt), "Hash algorithm: bcrypt or argon2id")
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
