// Command tokenwise optimizes local files into a token-budgeted context.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
