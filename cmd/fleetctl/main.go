// Command fleetctl manages portal secrets: it generates keys, seals
// secrets files and encrypts or decrypts portal passwords.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/narvanalabs/fleet-portal/internal/cipher"
	"github.com/narvanalabs/fleet-portal/internal/secrets"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

const usage = `usage: fleetctl <command> [flags]

commands:
  keygen    generate an age key pair, or a cipher key with --cipher
  seal      encrypt a YAML secrets document for an age recipient
  encrypt   encrypt a password with the portal cipher
  decrypt   decrypt an "iv:ciphertext" value with the portal cipher
  hash      bcrypt-hash a value, or check one against --hash
  secrets   list secrets in a project, or check that named secrets resolve
`

var errUsage = errors.New("invalid usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "keygen":
		err = keygen(args[1:], stdout, stderr)
	case "seal":
		err = seal(args[1:], stdout, stderr)
	case "encrypt":
		err = crypt(ctx, "encrypt", args[1:], stdin, stdout, stderr)
	case "decrypt":
		err = crypt(ctx, "decrypt", args[1:], stdin, stdout, stderr)
	case "hash":
		err = hash(args[1:], stdin, stdout, stderr)
	case "secrets":
		err = secretsCmd(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func keygen(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("keygen", stderr)
	cipherKey := fs.Bool("cipher", false, "generate a 32 character cipher key instead of an age key pair")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *cipherKey {
		key, err := randomKey(cipher.KeyLength)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, key)
		return nil
	}

	public, private, err := secrets.GenerateKeyPair()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "# public key: %s\n%s\n", public, private)
	return nil
}

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomKey(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating key: %w", err)
		}
		b.WriteByte(keyAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

func seal(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("seal", stderr)
	in := fs.StringP("in", "i", "", "plaintext YAML secrets document")
	out := fs.StringP("out", "o", "", "sealed output file")
	recipient := fs.StringP("recipient", "r", "", "age public key (age1...)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" || *recipient == "" {
		return fmt.Errorf("%w: seal requires --in, --out and --recipient", errUsage)
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", *in, err)
	}
	doc, err := secrets.ParseSecretsDocument(data)
	if err != nil {
		return err
	}
	if err := secrets.SealFile(*out, *recipient, doc); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "sealed %d secrets into %s\n", len(doc), *out)
	return nil
}

func crypt(ctx context.Context, mode string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet(mode, stderr)
	keyName := fs.String("key-name", "CIPHER_CRYPTO_KEY", "secret or environment variable holding the cipher key")
	keyVersion := fs.String("key-version", secrets.LatestVersion, "secret version")
	secretsFile := fs.String("secrets-file", "", "age-sealed secrets file to read the key from")
	identity := fs.String("identity", os.Getenv("SECRETS_AGE_IDENTITY"), "age identity or identity file for --secrets-file")
	verbose := fs.BoolP("verbose", "v", false, "log secret resolution")
	var b64 *bool
	if mode == "decrypt" {
		b64 = fs.Bool("base64", false, "the value is a base64-wrapped \"iv:ciphertext\"")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logger.Discard()
	if *verbose {
		log = logger.NewWithWriter(stderr, slog.LevelDebug, false).Logger
	}

	var backend secrets.Backend
	if *secretsFile != "" {
		b, err := secrets.NewAgeFileBackend(secrets.AgeFileConfig{Path: *secretsFile, Identity: *identity}, log)
		if err != nil {
			return err
		}
		backend = b
	}

	provider := secrets.NewProvider(backend, log)
	c := cipher.New(cipher.KeySourceFunc(provider.SecretKey(*keyName, *keyVersion)), log)

	value, err := input(fs.Args(), stdin)
	if err != nil {
		return err
	}

	var out string
	switch {
	case mode == "encrypt":
		out, err = c.Encrypt(ctx, value)
	case *b64:
		out, err = c.DecryptBase64(ctx, value)
	default:
		out, err = c.Decrypt(ctx, value)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, out)
	return nil
}

// input returns the first positional argument, or the first line of stdin.
func input(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%w: no value given", errUsage)
	}
	return line, nil
}

var errHashMismatch = errors.New("value does not match hash")

func hash(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("hash", stderr)
	cost := fs.Int("cost", cipher.DefaultHashCost, "bcrypt cost")
	check := fs.String("hash", "", "compare the value against this hash instead of hashing it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	value, err := input(fs.Args(), stdin)
	if err != nil {
		return err
	}

	if *check != "" {
		ok, err := cipher.CompareHash(value, *check)
		if err != nil {
			return err
		}
		if !ok {
			return errHashMismatch
		}
		fmt.Fprintln(stdout, "ok")
		return nil
	}

	out, err := cipher.HashPassword(value, *cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	return nil
}

var errUnresolved = errors.New("some secrets did not resolve")

// secretsCmd runs "secrets list" and "secrets check NAME...".
func secretsCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || (args[0] != "list" && args[0] != "check") {
		return fmt.Errorf("%w: secrets requires list or check", errUsage)
	}
	sub := args[0]

	fs := newFlagSet("secrets "+sub, stderr)
	project := fs.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT_ID"), "Secret Manager project")
	version := fs.String("version", secrets.LatestVersion, "secret version to check")
	secretsFile := fs.String("secrets-file", "", "age-sealed secrets file instead of Secret Manager")
	identity := fs.String("identity", os.Getenv("SECRETS_AGE_IDENTITY"), "age identity or identity file for --secrets-file")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	log := logger.Discard()

	var (
		backend secrets.Backend
		gcp     *secrets.GCPBackend
	)
	switch {
	case *secretsFile != "":
		b, err := secrets.NewAgeFileBackend(secrets.AgeFileConfig{Path: *secretsFile, Identity: *identity}, log)
		if err != nil {
			return err
		}
		backend = b
	case *project != "":
		b, err := secrets.NewGCPBackend(ctx, secrets.GCPConfig{
			ProjectID:       *project,
			CredentialsJSON: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"),
		}, log)
		if err != nil {
			return err
		}
		defer b.Close()
		backend, gcp = b, b
	}

	if sub == "list" {
		if gcp == nil {
			return fmt.Errorf("%w: secrets list requires --project", errUsage)
		}
		names, err := gcp.ListSecrets(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}

	names := fs.Args()
	if len(names) == 0 {
		return fmt.Errorf("%w: secrets check requires at least one name", errUsage)
	}
	resolved := secrets.NewProvider(backend, log).GetSecrets(ctx, names, *version)

	failed := false
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			fmt.Fprintf(stdout, "%s\tok\n", name)
			continue
		}
		failed = true
		state := "unresolved"
		if gcp != nil {
			if exists, err := gcp.SecretExists(ctx, name); err == nil && !exists {
				state = "missing"
			}
		}
		fmt.Fprintf(stdout, "%s\t%s\n", name, state)
	}
	if failed {
		return errUnresolved
	}
	return nil
}
