// Package cipher implements the vendor-specific payload ciphers used by
// the supported platforms: AES-CBC field encryption and the XOR header
// obfuscation applied to downloaded assets.
package cipher

import (
	"bytes"
	"crypto/aes"
	ciph "crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
)

// APPX white-label apps ship one hardcoded key/IV pair across every host.
var (
	appxKey = []byte("638udh3829162018")
	appxIV  = []byte("fedcba9876543210")
)

// Utkarsh uses its own pair for both the tile request payloads and the
// response bodies.
var (
	utkarshKey = []byte("%!$!%_$&!%F)&^!^")
	utkarshIV  = []byte("#*y*#2yJ*#$wJv*v")
)

// utkarshPadToken is the base64 filler Utkarsh splices into response
// bodies in place of the real padding suffix.
const utkarshPadToken = "MDE2MTA4NjQxMDI3NDUxNQ=="

// Pkcs7Pad appends PKCS#7 padding up to the given block size.
func Pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// Pkcs7Unpad strips PKCS#7 padding, validating every pad byte.
func Pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid pad byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("corrupt padding")
		}
	}
	return data[:len(data)-n], nil
}

func cbcDecrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d not a block multiple", len(data))
	}
	out := make([]byte, len(data))
	ciph.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return Pkcs7Unpad(out, block.BlockSize())
}

func cbcEncrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := Pkcs7Pad(data, block.BlockSize())
	out := make([]byte, len(padded))
	ciph.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptAppx decrypts an APPX-encrypted field. The field carries
// base64 ciphertext before the first ':'; anything after it is discarded.
// Any failure returns "", which callers treat as the field being absent.
func DecryptAppx(s string) string {
	if s == "" {
		return ""
	}
	enc := s
	if i := strings.Index(enc, ":"); i >= 0 {
		enc = enc[:i]
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return ""
	}
	plain, err := cbcDecrypt(appxKey, appxIV, raw)
	if err != nil {
		return ""
	}
	return string(plain)
}

// EncryptAppx is the inverse of DecryptAppx, used to encrypt manifests
// at rest. Failure returns "".
func EncryptAppx(plain string) string {
	out, err := cbcEncrypt(appxKey, appxIV, []byte(plain))
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(out)
}

// EncryptUtkarsh encrypts a tile request payload. Failure returns "".
func EncryptUtkarsh(plain string) string {
	out, err := cbcEncrypt(utkarshKey, utkarshIV, []byte(plain))
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(out)
}

// DecryptUtkarsh decrypts a normalized Utkarsh payload. Failure
// returns "".
func DecryptUtkarsh(s string) string {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	plain, err := cbcDecrypt(utkarshKey, utkarshIV, raw)
	if err != nil {
		return ""
	}
	return string(plain)
}

// NormalizeUtkarshPayload undoes the transport mangling Utkarsh applies
// to response bodies before they can be decrypted: the filler token
// becomes '==' and every remaining ':' becomes '=='.
func NormalizeUtkarshPayload(s string) string {
	s = strings.ReplaceAll(s, utkarshPadToken, "==")
	return strings.ReplaceAll(s, ":", "==")
}

// headerPatchLen is how many leading bytes the platforms obfuscate in
// downloadable assets.
const headerPatchLen = 28

// PatchHeader reverses the XOR obfuscation on the first bytes of a
// downloaded asset, in place. Byte i is XORed with key[i] while the key
// lasts, then with i itself.
func PatchHeader(b []byte, key string) {
	n := headerPatchLen
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if i < len(key) {
			b[i] ^= key[i]
		} else {
			b[i] ^= byte(i)
		}
	}
}
