package cli

import (
	"fmt"
	"os"

	"mauz"
	archive "mauz/internal/mauz"

	"github.com/spf13/cobra"
)

func init() {
	listCmd.SilenceErrors = true
	listCmd.SilenceUsage = true
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entries of a MAUS stream or MAUZ archive",
	Long: `List every entry of a MAUS stream or MAUZ archive without
extracting it.

Examples:
  mausctl list -i docs.mauz
  mausctl list -i secret.mauz -p "mypassword"`,
	RunE: runList,
}

var (
	listInput    string
	listPassword string
	listKeyFile  string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listInput, "input", "i", "", "Input .mauz/.maus file")
	listCmd.Flags().StringVarP(&listPassword, "password", "p", "", "Decryption password")
	listCmd.Flags().StringVar(&listKeyFile, "key-file", "", "Raw key file, if the archive was packed with one")

	_ = listCmd.MarkFlagRequired("input")
}

func runList(cmd *cobra.Command, args []string) error {
	if listInput == "" {
		return fmt.Errorf("input path is required (-i)")
	}

	in, err := os.Open(listInput)
	if err != nil {
		return fmt.Errorf("input file not found: %s", listInput)
	}
	defer in.Close()

	container, err := mauz.OpenRead(in, true)
	if err != nil {
		return fmt.Errorf("open %s: %w", listInput, err)
	}

	switch {
	case listKeyFile != "":
		key, err := os.ReadFile(listKeyFile)
		if err != nil {
			return fmt.Errorf("keyfile not found: %s", listKeyFile)
		}
		container.SetKey(key)
	case listPassword != "":
		container.SetPassword([]byte(listPassword))
	case container.IsEncrypted():
		password, err := ReadPasswordInteractive(false)
		if err != nil && err != ErrPasswordEmpty {
			return fmt.Errorf("password input: %w", err)
		}
		container.SetPassword([]byte(password))
	}

	if err := container.Decrypt(); err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	for _, e := range container.Entries() {
		kind := "file"
		switch e.Kind {
		case archive.EmptyDirectory:
			kind = "dir"
		case archive.Unknown:
			kind = "unknown"
		}
		size := int64(0)
		if e.Container != nil {
			size = e.Container.CompressedLength()
		}
		fmt.Printf("%-8s %10d  %s\n", kind, size, e.Path)
	}

	return container.Close()
}
