package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jharjadi/tokenwise/internal/tokenizer"
)

var countCmd = &cobra.Command{
	Use:   "count [paths or globs...]",
	Short: "Count tokens in files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	items, err := loadItems(paths)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	counter := tokenizer.New(tokenizerModel)
	total := 0
	for _, item := range items {
		n := counter.Count(item.Text)
		total += n
		fmt.Fprintf(out, "%8d  %s\n", n, item.ID)
	}
	if len(items) > 1 {
		fmt.Fprintf(out, "%8d  total\n", total)
	}
	return nil
}
