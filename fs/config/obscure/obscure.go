// Package obscure hides secrets, such as the FTP password, which are
// kept in the settings file
//
// This is obscuring not encryption: anyone with this source can
// reveal the values. It stops passwords being read over a shoulder.
package obscure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log"
	"strings"

	"github.com/pkg/errors"
)

// Prefix marks a value as obscured so plain values can still be
// read from settings files written by hand.
const Prefix = "obscured:"

// crypt internals
var (
	cryptKey = []byte{
		0x9c, 0x93, 0x5b, 0x48, 0x73, 0x0a, 0x55, 0x4d,
		0x6b, 0xfd, 0x7c, 0x63, 0xc8, 0x86, 0xa9, 0x2b,
		0xd3, 0x90, 0x19, 0x8e, 0xb8, 0x12, 0x8a, 0xfb,
		0xf4, 0xde, 0x16, 0x2b, 0x8b, 0x95, 0xf6, 0x38,
	}
	cryptRand io.Reader = rand.Reader
)

// xorStream runs AES-CTR over in with iv writing to out, which may
// be the same buffer. Obscuring and revealing are the same operation.
func xorStream(out, in, iv []byte) error {
	block, err := aes.NewCipher(cryptKey)
	if err != nil {
		return err
	}
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return nil
}

// IsObscured returns true if x was made by Obscure
func IsObscured(x string) bool {
	return strings.HasPrefix(x, Prefix)
}

// Obscure a value
func Obscure(x string) (string, error) {
	buf := make([]byte, aes.BlockSize+len(x))
	iv := buf[:aes.BlockSize]
	if _, err := io.ReadFull(cryptRand, iv); err != nil {
		return "", errors.Wrap(err, "failed to read iv")
	}
	if err := xorStream(buf[aes.BlockSize:], []byte(x), iv); err != nil {
		return "", errors.Wrap(err, "obscure failed")
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Reveal an obscured value
func Reveal(x string) (string, error) {
	if !IsObscured(x) {
		return "", errors.New("value is not obscured")
	}
	buf, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(x, Prefix))
	if err != nil {
		return "", errors.Wrap(err, "base64 decode failed when revealing value")
	}
	if len(buf) < aes.BlockSize {
		return "", errors.New("input too short when revealing value")
	}
	iv, plain := buf[:aes.BlockSize], buf[aes.BlockSize:]
	if err := xorStream(plain, plain, iv); err != nil {
		return "", errors.Wrap(err, "reveal failed")
	}
	return string(plain), nil
}

// RevealIfObscured returns x revealed if it was obscured, or x
// unchanged if it is a plain value.
func RevealIfObscured(x string) (string, error) {
	if !IsObscured(x) {
		return x, nil
	}
	return Reveal(x)
}

// MustObscure obscures a value, exiting with a fatal error if it failed
func MustObscure(x string) string {
	out, err := Obscure(x)
	if err != nil {
		log.Fatalf("Obscure failed: %v", err)
	}
	return out
}

// MustReveal reveals an obscured value, exiting with a fatal error if it failed
func MustReveal(x string) string {
	out, err := Reveal(x)
	if err != nil {
		log.Fatalf("Reveal failed: %v", err)
	}
	return out
}
