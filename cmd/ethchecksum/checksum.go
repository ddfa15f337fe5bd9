package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ethchecksum/ethchecksum/checksum"
)

var errInvalidInput = errors.New("one or more addresses are invalid")

func checksumCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "checksum [address...]",
		Short: "Print the EIP-55 checksum form of addresses",
		Long: `Print the EIP-55 checksum form of each address argument, or of each
line read from stdin when no argument is given. Blank input is skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := args
			if len(inputs) == 0 {
				lines, err := readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
				inputs = lines
			}
			return runChecksum(cmd.OutOrStdout(), cmd.ErrOrStderr(), inputs, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "reject mixed-case input whose checksum is wrong")
	return cmd
}

func runChecksum(out, errOut io.Writer, inputs []string, strict bool) error {
	failed := false
	for _, raw := range inputs {
		input := strings.TrimSpace(raw)
		if input == "" {
			continue
		}

		normalized, err := checksum.Normalize(input)
		if err == nil && strict {
			err = checksum.Verify(input)
		}
		if err != nil {
			failed = true
			if errors.Is(err, checksum.ErrChecksumMismatch) {
				fmt.Fprintf(errOut, "%s: bad checksum, expected %s\n", input, normalized)
			} else {
				fmt.Fprintf(errOut, "%s: Invalid Ethereum address\n", input)
			}
			continue
		}
		fmt.Fprintln(out, normalized)
	}

	if failed {
		return errInvalidInput
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
