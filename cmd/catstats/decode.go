package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/franz/catstats/internal/marc"
	"github.com/franz/catstats/internal/report"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [field text]",
	Short: "Decode a 962 statistics field string",
	Long: `Decode the packed 962 statistics field into its groups and subfields.

Groups are separated by ";" and every subfield starts with "$$" followed by
its one-character code. Without an argument the text is read from stdin,
one field per line.`,
	Example: `  catstats decode '$$a law $$b jdoe $$c 20240315 $$d 2 $$h pcc $$h conser'
  catstats decode --policy single < fields.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().String("policy", "multi", "repeated codes: multi keeps all, single keeps the last")
	decodeCmd.Flags().String("format", "table", "output format: table, md or csv")
}

func parseMarcPolicy(s string) (marc.Policy, error) {
	switch strings.ToLower(s) {
	case "", "multi":
		return marc.MultiValue, nil
	case "single":
		return marc.SingleValue, nil
	default:
		return 0, fmt.Errorf("%w: unknown decode policy %q (use multi or single)", util.ErrInvalidConfig, s)
	}
}

// decodeTable renders one row per group and code, values joined by " | "
func decodeTable(groups []marc.Subfields) ([]string, [][]string) {
	headers := []string{"Group", "Code", "Values"}
	var rows [][]string
	for i, sf := range groups {
		for _, code := range sf.Codes() {
			rows = append(rows, []string{itoa(i + 1), code, strings.Join(sf.Values(code), " | ")})
		}
	}
	return headers, rows
}

func runDecode(cmd *cobra.Command, args []string) error {
	policyName, _ := cmd.Flags().GetString("policy")
	policy, err := parseMarcPolicy(policyName)
	if err != nil {
		return err
	}

	formatName, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}

	if len(args) == 1 {
		return decodeOne(os.Stdout, args[0], policy, format)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := decodeOne(os.Stdout, line, policy, format); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func decodeOne(w io.Writer, text string, policy marc.Policy, format report.Format) error {
	groups := marc.Parse(text, policy)
	if len(groups) == 0 {
		util.WarnLog("No groups in %q", text)
		return nil
	}

	headers, rows := decodeTable(groups)
	if err := report.WriteTable(w, format, headers, rows); err != nil {
		return err
	}
	util.DebugLog("Canonical form: %s", marc.Format(groups, nil))
	return nil
}
