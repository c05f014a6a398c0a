package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/fleet-portal/internal/secrets"
)

const testKey = "0123456789abcdef0123456789abcdef"

func runCmd(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, strings.TrimSpace(stdout.String()), stderr.String()
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("CIPHER_CRYPTO_KEY", testKey)

	code, encrypted, stderr := runCmd(t, "", "encrypt", "secret123")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, encrypted, ":")

	code, decrypted, stderr := runCmd(t, encrypted+"\n", "decrypt")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "secret123", decrypted)
}

func TestEncryptWithoutKey(t *testing.T) {
	t.Setenv("FLEETCTL_TEST_EMPTY", "")
	code, _, stderr := runCmd(t, "", "encrypt", "--key-name", "FLEETCTL_TEST_EMPTY", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error:")
}

func TestHashAndCheck(t *testing.T) {
	code, hashed, stderr := runCmd(t, "", "hash", "--cost", "4", "hunter22")
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(hashed, "$2"))

	code, out, _ := runCmd(t, "hunter22\n", "hash", "--hash", hashed)
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok", out)

	code, _, stderr = runCmd(t, "", "hash", "--hash", hashed, "hunter23")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "does not match")
}

func TestKeygenCipher(t *testing.T) {
	code, key, _ := runCmd(t, "", "keygen", "--cipher")
	require.Equal(t, 0, code)
	assert.Len(t, key, 32)
}

func TestSealAndReadBack(t *testing.T) {
	public, private, err := secrets.GenerateKeyPair()
	require.NoError(t, err)

	dir := t.TempDir()
	in := filepath.Join(dir, "secrets.yaml")
	out := filepath.Join(dir, "secrets.age")
	require.NoError(t, os.WriteFile(in, []byte("CIPHER_CRYPTO_KEY:\n  \"1\": "+testKey+"\n"), 0o600))

	code, msg, stderr := runCmd(t, "", "seal", "-i", in, "-o", out, "-r", public)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, msg, "sealed 1 secrets")

	t.Setenv("CIPHER_CRYPTO_KEY", "")
	code, encrypted, stderr := runCmd(t, "", "encrypt", "--secrets-file", out, "--identity", private, "hello")
	require.Equal(t, 0, code, stderr)

	t.Setenv("CIPHER_CRYPTO_KEY", testKey)
	code, decrypted, _ := runCmd(t, "", "decrypt", encrypted)
	require.Equal(t, 0, code)
	assert.Equal(t, "hello", decrypted)
}

func TestDecryptBase64(t *testing.T) {
	t.Setenv("CIPHER_CRYPTO_KEY", testKey)

	code, encrypted, _ := runCmd(t, "", "encrypt", "secret123")
	require.Equal(t, 0, code)

	wrapped := base64.StdEncoding.EncodeToString([]byte(encrypted))
	code, decrypted, stderr := runCmd(t, "", "decrypt", "--base64", wrapped)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "secret123", decrypted)
}

func TestSecretsCheck(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT_ID", "")
	t.Setenv("FLEETCTL_TEST_PRESENT", "value")
	t.Setenv("FLEETCTL_TEST_ABSENT", "")

	code, out, _ := runCmd(t, "", "secrets", "check", "FLEETCTL_TEST_PRESENT")
	assert.Equal(t, 0, code)
	assert.Equal(t, "FLEETCTL_TEST_PRESENT\tok", out)

	code, out, _ = runCmd(t, "", "secrets", "check", "FLEETCTL_TEST_PRESENT", "FLEETCTL_TEST_ABSENT")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FLEETCTL_TEST_ABSENT\tunresolved")
}

func TestSecretsCheckAgeFile(t *testing.T) {
	public, private, err := secrets.GenerateKeyPair()
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "secrets.age")
	require.NoError(t, secrets.SealFile(out, public, map[string]map[string]string{
		"FLEETCTL_TEST_SEALED": {"1": "v1"},
	}))
	t.Setenv("FLEETCTL_TEST_SEALED", "")

	code, msg, stderr := runCmd(t, "", "secrets", "check", "--secrets-file", out, "--identity", private, "FLEETCTL_TEST_SEALED")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "FLEETCTL_TEST_SEALED\tok", msg)
}

func TestUsageErrors(t *testing.T) {
	code, _, _ := runCmd(t, "")
	assert.Equal(t, 2, code)

	code, _, stderr := runCmd(t, "", "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")

	code, _, _ = runCmd(t, "", "seal")
	assert.Equal(t, 2, code)

	code, _, _ = runCmd(t, "", "secrets")
	assert.Equal(t, 2, code)

	t.Setenv("GOOGLE_CLOUD_PROJECT_ID", "")
	code, _, _ = runCmd(t, "", "secrets", "list")
	assert.Equal(t, 2, code)

	code, _, _ = runCmd(t, "", "secrets", "check")
	assert.Equal(t, 2, code)
}
