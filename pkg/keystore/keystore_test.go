package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()

	ks, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, ks)

	assert.FileExists(t, filepath.Join(dir, privateKeyFile))
	assert.FileExists(t, filepath.Join(dir, publicKeyFile))

	info, err := os.Stat(filepath.Join(dir, privateKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	ks1, err := Load(dir)
	require.NoError(t, err)
	pub1, err := ks1.PublicKeyPEM()
	require.NoError(t, err)

	ks2, err := Load(dir)
	require.NoError(t, err)
	pub2, err := ks2.PublicKeyPEM()
	require.NoError(t, err)

	assert.Equal(t, pub1, pub2)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ks, err := Load(dir)
	require.NoError(t, err)

	msg := []byte("content to sign")
	sig, err := ks.Sign(msg)
	require.NoError(t, err)

	pubPEM, err := ks.PublicKeyPEM()
	require.NoError(t, err)

	assert.NoError(t, Verify(pubPEM, msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	dir := t.TempDir()
	ks, err := Load(dir)
	require.NoError(t, err)

	sig, err := ks.Sign([]byte("original"))
	require.NoError(t, err)

	pubPEM, err := ks.PublicKeyPEM()
	require.NoError(t, err)

	assert.Error(t, Verify(pubPEM, []byte("tampered"), sig))
}

func TestExportImportRoundTrip(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src, err := Load(srcDir)
	require.NoError(t, err)
	srcPub, err := src.PublicKeyPEM()
	require.NoError(t, err)

	exportPath := filepath.Join(t.TempDir(), "exported.pem")
	require.NoError(t, src.Export(exportPath))

	dst, err := Load(dstDir)
	require.NoError(t, err)
	require.NoError(t, dst.Import(exportPath))

	dstPub, err := dst.PublicKeyPEM()
	require.NoError(t, err)
	assert.Equal(t, srcPub, dstPub)

	persisted, err := Load(dstDir)
	require.NoError(t, err)
	persistedPub, err := persisted.PublicKeyPEM()
	require.NoError(t, err)
	assert.Equal(t, srcPub, persistedPub)
}

func TestRegenerateReplacesIdentity(t *testing.T) {
	dir := t.TempDir()
	ks, err := Load(dir)
	require.NoError(t, err)
	before, err := ks.PublicKeyPEM()
	require.NoError(t, err)

	require.NoError(t, ks.Regenerate())
	after, err := ks.PublicKeyPEM()
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	ksA, err := Load(dirA)
	require.NoError(t, err)
	ksB, err := Load(dirB)
	require.NoError(t, err)

	msg := []byte("hello")
	sig, err := ksA.Sign(msg)
	require.NoError(t, err)

	pubB, err := ksB.PublicKeyPEM()
	require.NoError(t, err)

	assert.Error(t, Verify(pubB, msg, sig))
}
