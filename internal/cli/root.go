package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set by main.go
var Version = "dev"

// rootCmd is the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "mausctl",
	Short: "Pack and inspect MAUS/MAUZ containers",
	Long: `mausctl reads and writes MAUS single-entry streams and MAUZ
multi-entry archives:
  - AES-CBC (128/192/256-bit keys) with PBKDF2 key derivation (or RSA-wrapped content keys)
  - DEFLATE or LZMA payload compression
  - SHA-256/SHA-512/SHA3/Whirlpool entry hashing
  - An optional, optionally signed manifest entry for whole-archive integrity verification`,
	Version: Version,
}

// Global reporter for signal handling
var globalReporter *Reporter

// Execute runs the CLI application.
func Execute(version string) {
	Version = version
	rootCmd.Version = version

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if globalReporter != nil {
			globalReporter.Cancel()
			fmt.Fprintln(os.Stderr, "\nCancelling operation...")
		} else {
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
