package cli

import (
	"crypto/rsa"
	"fmt"
	"os"

	"mauz"
	"mauz/internal/keymaterial"

	"github.com/spf13/cobra"
)

func init() {
	verifyCmd.SilenceErrors = true
	verifyCmd.SilenceUsage = true
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a MAUZ archive's manifest without extracting it",
	Long: `Verify checks a MAUZ archive's integrity manifest (if it was packed
with --manifest) against every other entry's plaintext, without writing
anything to disk.

Examples:
  mausctl verify -i docs.mauz
  mausctl verify -i secret.mauz -p "mypassword"`,
	RunE: runVerify,
}

var (
	verifyInput    string
	verifyPassword string
	verifyKeyFile  string
	verifySignKey  string
)

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&verifyInput, "input", "i", "", "Input .mauz/.maus file")
	verifyCmd.Flags().StringVarP(&verifyPassword, "password", "p", "", "Decryption password")
	verifyCmd.Flags().StringVar(&verifyKeyFile, "key-file", "", "Raw key file, if the archive was packed with one")
	verifyCmd.Flags().StringVar(&verifySignKey, "verify-key", "", "PEM-encoded RSA public key to check the manifest's signature against")

	_ = verifyCmd.MarkFlagRequired("input")
}

func runVerify(cmd *cobra.Command, args []string) error {
	if verifyInput == "" {
		return fmt.Errorf("input path is required (-i)")
	}

	in, err := os.Open(verifyInput)
	if err != nil {
		return fmt.Errorf("input file not found: %s", verifyInput)
	}
	defer in.Close()

	container, err := mauz.OpenRead(in, true)
	if err != nil {
		return fmt.Errorf("open %s: %w", verifyInput, err)
	}

	switch {
	case verifyKeyFile != "":
		key, err := os.ReadFile(verifyKeyFile)
		if err != nil {
			return fmt.Errorf("keyfile not found: %s", verifyKeyFile)
		}
		container.SetKey(key)
	case verifyPassword != "":
		container.SetPassword([]byte(verifyPassword))
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
	defer container.Close()

	var signerPub *rsa.PublicKey
	if verifySignKey != "" {
		pub, err := keymaterial.LoadRSAPublicKey(verifySignKey)
		if err != nil {
			return err
		}
		signerPub = pub
	}

	failed, err := container.Verify(signerPub)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if failed != "" {
		return fmt.Errorf("manifest mismatch: %s", failed)
	}

	fmt.Fprintf(os.Stderr, "%s: manifest OK\n", verifyInput)
	return nil
}
