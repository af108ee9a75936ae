package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test vector: private key 0x01 maps to this address.
const (
	testKeyHex  = "0000000000000000000000000000000000000000000000000000000000000001"
	testKeyAddr = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptRejectsBadKeys(t *testing.T) {
	_, err := EncryptKey("not-hex", "hunter2")
	require.Error(t, err)

	_, err = EncryptKey("abcd", "hunter2")
	require.Error(t, err, "short keys are rejected")

	_, err = EncryptKey(testKeyHex, "")
	require.Error(t, err, "empty password is rejected")
}

func TestLoadKeyPrefersRawKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKeyNoSource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	require.Error(t, err)
}

func TestAddressFromKey(t *testing.T) {
	addr, err := AddressFromKey(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, testKeyAddr, addr.Hex())

	_, err = AddressFromKey("zz")
	require.Error(t, err)
}
