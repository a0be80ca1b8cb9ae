// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKeyPair(t *testing.T, commonName string) (crt, key []byte) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{commonName},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	keyDer, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)

	crt = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	key = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer})
	return
}

func writeKeyPair(t *testing.T, fs afero.Fs, commonName string, modTime time.Time) {
	t.Helper()

	crt, key := generateKeyPair(t, commonName)
	require.NoError(t, afero.WriteFile(fs, "cert/bulkmail.crt", crt, 0644))
	require.NoError(t, afero.WriteFile(fs, "cert/bulkmail.key", key, 0600))
	require.NoError(t, fs.Chtimes("cert/bulkmail.crt", modTime, modTime))
	require.NoError(t, fs.Chtimes("cert/bulkmail.key", modTime, modTime))
}

func commonName(t *testing.T, cert *tls.Certificate) string {
	t.Helper()

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}

func TestNewTLSConfigNone(t *testing.T) {
	viper.Set("tls.source", "none")
	defer viper.Set("tls.source", "none")

	config, err := NewTLSConfig(afero.NewMemMapFs())
	assert.NoError(t, err)
	assert.Nil(t, config)
}

func TestNewTLSConfigUnknown(t *testing.T) {
	viper.Set("tls.source", "acme")
	defer viper.Set("tls.source", "none")

	config, err := NewTLSConfig(afero.NewMemMapFs())
	assert.Error(t, err)
	assert.Nil(t, config)
}

func TestNewTLSConfigFiles(t *testing.T) {
	viper.Set("tls.source", "files")
	defer viper.Set("tls.source", "none")

	fs := afero.NewMemMapFs()
	start := time.Now().Add(-time.Minute)
	writeKeyPair(t, fs, "first.example", start)

	config, err := NewTLSConfig(fs)
	require.NoError(t, err)
	require.NotNil(t, config)

	cert, err := config.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "first.example", commonName(t, cert))

	cached, err := config.GetCertificate(nil)
	require.NoError(t, err)
	assert.Same(t, cert, cached)

	writeKeyPair(t, fs, "second.example", start.Add(time.Second))

	renewed, err := config.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "second.example", commonName(t, renewed))
}

func TestNewTLSConfigFilesMissing(t *testing.T) {
	viper.Set("tls.source", "files")
	defer viper.Set("tls.source", "none")

	config, err := NewTLSConfig(afero.NewMemMapFs())
	require.NoError(t, err)

	cert, err := config.GetCertificate(nil)
	assert.Error(t, err)
	assert.Nil(t, cert)
}
