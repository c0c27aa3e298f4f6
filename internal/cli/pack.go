package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mauz"
	"mauz/internal/compress"
	"mauz/internal/cryptoprim"
	"mauz/internal/keymaterial"

	"github.com/spf13/cobra"
)

func init() {
	packCmd.SilenceErrors = true
	packCmd.SilenceUsage = true
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack one or more files into a MAUZ archive",
	Long: `Pack one or more files (or directories) into a MAUZ archive.

If no password, raw key, or RSA public key is provided, the archive is
written unencrypted.

Examples:
  # Pack a directory without encryption
  mausctl pack -i docs/ -o docs.mauz

  # Pack with a password on the command line
  mausctl pack -i report.pdf -o report.mauz -p "mypassword"

  # Pack with LZMA compression and a raw 32-byte key file
  mausctl pack -i data.bin -o data.mauz --compress lzma --key-file key.bin

  # Pack with an RSA public key wrapping the content key
  mausctl pack -i secret.txt -o secret.mauz --rsa-pub pub.pem`,
	RunE: runPack,
}

var (
	packInput         []string
	packOutput        string
	packPassword      string
	packPasswordStdin bool
	packKeyFile       string
	packRSAPubFile    string
	packKeyBits       int
	packCycles        int
	packHash          string
	packCompress      string
	packManifest      bool
	packSignKeyFile   string
	packQuiet         bool
	packYes           bool
)

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringArrayVarP(&packInput, "input", "i", nil, "Input file(s)/director(ies) to pack (can be specified multiple times)")
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "Output .mauz file path")

	packCmd.Flags().StringVarP(&packPassword, "password", "p", "", "Archive password")
	packCmd.Flags().BoolVarP(&packPasswordStdin, "password-stdin", "P", false, "Read password from stdin")
	packCmd.Flags().StringVar(&packKeyFile, "key-file", "", "Raw key file (bypasses PBKDF2 entirely)")
	packCmd.Flags().StringVar(&packRSAPubFile, "rsa-pub", "", "PEM-encoded RSA public key to wrap the content key")
	packCmd.Flags().IntVar(&packKeyBits, "key-bits", 256, "AES key size in bits: 128, 192, or 256")
	packCmd.Flags().IntVar(&packCycles, "pbkdf2-cycles", 0, "PBKDF2 cycle count (0 = library default)")

	packCmd.Flags().StringVar(&packHash, "hash", "sha256", "Entry hash function: sha256, sha512, sha3-256, sha3-512, whirlpool")
	packCmd.Flags().StringVar(&packCompress, "compress", "deflate", "Payload compression: none, deflate, lzma")
	packCmd.Flags().BoolVar(&packManifest, "manifest", false, "Append an integrity manifest entry covering every packed file")
	packCmd.Flags().StringVar(&packSignKeyFile, "sign-key", "", "PEM-encoded RSA private key to sign the manifest table (requires --manifest)")

	packCmd.Flags().BoolVarP(&packQuiet, "quiet", "q", false, "Suppress progress output")
	packCmd.Flags().BoolVarP(&packYes, "yes", "y", false, "Overwrite output file without prompting")

	_ = packCmd.MarkFlagRequired("input")
	_ = packCmd.MarkFlagRequired("output")
}

func runPack(cmd *cobra.Command, args []string) error {
	if len(packInput) == 0 {
		return fmt.Errorf("at least one input path is required (-i)")
	}
	if packOutput == "" {
		return fmt.Errorf("output path is required (-o)")
	}

	type stagedFile struct {
		archivePath string
		diskPath    string
	}
	type stagedDir struct{ archivePath string }

	var files []stagedFile
	var dirs []stagedDir

	for _, input := range packInput {
		matches, err := filepath.Glob(input)
		if err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", input, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("input not found: %s", input)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return fmt.Errorf("cannot access %s: %w", match, err)
			}
			base := filepath.Base(match)
			if info.IsDir() {
				err := filepath.Walk(match, func(path string, fi os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					rel, err := filepath.Rel(match, path)
					if err != nil {
						return err
					}
					archivePath := filepath.ToSlash(filepath.Join(base, rel))
					if fi.IsDir() {
						if rel == "." {
							return nil
						}
						dirs = append(dirs, stagedDir{archivePath: archivePath})
						return nil
					}
					files = append(files, stagedFile{archivePath: archivePath, diskPath: path})
					return nil
				})
				if err != nil {
					return fmt.Errorf("walking %s: %w", match, err)
				}
			} else {
				files = append(files, stagedFile{archivePath: base, diskPath: match})
			}
		}
	}
	if len(files) == 0 && len(dirs) == 0 {
		return fmt.Errorf("no files found to pack")
	}

	if _, err := os.Stat(packOutput); err == nil && !packYes {
		if !confirmOverwrite(packOutput) {
			return fmt.Errorf("operation cancelled")
		}
	}

	hashFn, err := cryptoprim.HashFuncFromKeyword(hashKeywordFromFlag(packHash))
	if err != nil {
		return fmt.Errorf("invalid --hash: %s", packHash)
	}
	compressFmt, err := compressFormatFromFlag(packCompress)
	if err != nil {
		return err
	}

	cfg := mauz.CreateConfig{Hash: hashFn, KeyBits: packKeyBits, PBKDF2Cycles: packCycles, Manifest: packManifest}

	if packSignKeyFile != "" {
		if !packManifest {
			return fmt.Errorf("--sign-key requires --manifest")
		}
		signKey, err := keymaterial.LoadRSAPrivateKey(packSignKeyFile)
		if err != nil {
			return err
		}
		cfg.ManifestSignKey = signKey
	}

	var pw *keymaterial.Password
	switch {
	case packRSAPubFile != "":
		pub, err := keymaterial.LoadRSAPublicKey(packRSAPubFile)
		if err != nil {
			return err
		}
		cfg.RSAPub = pub
		cfg.Encrypt = true
	case packKeyFile != "":
		key, err := keymaterial.LoadRawKey(packKeyFile, cryptoprim.KeyBytes(packKeyBits))
		if err != nil {
			return err
		}
		cfg.RawKey = key
		cfg.Encrypt = true
	case packPasswordStdin:
		password, err := ReadPasswordFromStdin()
		if err != nil {
			return err
		}
		pw = keymaterial.NewPassword(password)
		cfg.Password = pw.Bytes()
		cfg.Encrypt = true
	case packPassword != "":
		pw = keymaterial.NewPassword(packPassword)
		cfg.Password = pw.Bytes()
		cfg.Encrypt = true
	default:
		if !packQuiet {
			fmt.Fprintln(os.Stderr, "No password, key file, or RSA key given - writing an unencrypted archive.")
		}
	}
	if pw != nil {
		defer pw.Close()
	}

	reporter := NewReporter(packQuiet)
	globalReporter = reporter

	out, err := os.Create(packOutput)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	container, err := mauz.OpenCreate(out, cfg, true)
	if err != nil {
		return err
	}

	if !packQuiet {
		fmt.Fprintf(os.Stderr, "Packing %d file(s) into %s\n", len(files), packOutput)
	}

	for _, d := range dirs {
		if err := container.AddEmptyDirectory(d.archivePath); err != nil {
			reporter.PrintError("%v", err)
			return err
		}
	}
	for i, f := range files {
		reporter.SetStatus(f.archivePath)
		reporter.SetProgress(float32(i)/float32(len(files)), fmt.Sprintf("%d/%d", i+1, len(files)))
		reporter.Update()

		data, err := os.ReadFile(f.diskPath)
		if err != nil {
			reporter.PrintError("%v", err)
			return err
		}
		if err := container.AddFile(f.archivePath, data, mauz.FileOptions{
			Compression: compressFmt,
			Hash:        hashFn,
		}); err != nil {
			reporter.PrintError("%v", err)
			return err
		}
	}
	reporter.Finish()

	if err := container.Close(); err != nil {
		reporter.PrintError("%v", err)
		_ = os.Remove(packOutput)
		return err
	}

	reporter.PrintSuccess("Packed %d file(s) into %s", len(files), packOutput)
	return nil
}

func confirmOverwrite(path string) bool {
	fmt.Fprintf(os.Stderr, "Output file %s already exists. Overwrite? [y/N]: ", path)
	var response string
	fmt.Fscanln(os.Stdin, &response)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

func hashKeywordFromFlag(s string) string {
	switch strings.ToLower(s) {
	case "sha256":
		return "SHA256"
	case "sha512":
		return "SHA512"
	case "sha3-256":
		return "SHA3-256"
	case "sha3-512":
		return "SHA3-512"
	case "whirlpool":
		return "WHIRLPOOL"
	default:
		return strings.ToUpper(s)
	}
}

func compressFormatFromFlag(s string) (compress.Format, error) {
	switch strings.ToLower(s) {
	case "none", "store":
		return compress.None, nil
	case "deflate":
		return compress.Deflate, nil
	case "lzma":
		return compress.Lzma, nil
	default:
		return 0, fmt.Errorf("invalid --compress: %s (must be none, deflate, or lzma)", s)
	}
}
