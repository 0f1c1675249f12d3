package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("test-master-key-for-encryption-12345"))
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXP")
	aad := []byte("user-1")

	a, err := s.Seal(secret, aad)
	require.NoError(t, err)
	b, err := s.Seal(secret, aad)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "random nonce should make ciphertexts differ")

	got, err := s.Open(a, aad)
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestSealerRejects(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("key-a"))
	require.NoError(t, err)
	other, err := cryptox.NewSealer([]byte("key-b"))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("data"), []byte("user-1"))
	require.NoError(t, err)

	t.Run("wrong additional data", func(t *testing.T) {
		_, err := s.Open(sealed, []byte("user-2"))
		require.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := other.Open(sealed, []byte("user-1"))
		require.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := s.Open("c2hvcnQ", nil)
		require.ErrorIs(t, err, cryptox.ErrSealedTooShort)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := s.Open("!!!", nil)
		require.Error(t, err)
	})
}

func TestLoadSealerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, os.WriteFile(path, []byte("file-based-master-key"), 0o600))

	a, err := cryptox.LoadSealer(path)
	require.NoError(t, err)
	b, err := cryptox.LoadSealer(path)
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("data"), nil)
	require.NoError(t, err)
	got, err := b.Open(sealed, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)

	_, err = cryptox.LoadSealer(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestLoadOrCreatePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pepper")

	first, err := cryptox.LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := cryptox.LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "pepper should persist across loads")

	ephemeral, err := cryptox.LoadOrCreatePepper("")
	require.NoError(t, err)
	require.NotEqual(t, first, ephemeral)
}
