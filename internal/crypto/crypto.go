package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Cipher encrypts and decrypts platform credentials with AES-256-CBC.
// Ciphertexts are encoded as "ivHex:cipherHex". Plaintext credentials
// only ever exist transiently in memory.
type Cipher struct {
	key []byte
}

// New creates a Cipher from a secret string. The key is padded with '0'
// or truncated so it is exactly 32 bytes.
func New(secret string) *Cipher {
	key := []byte(secret)
	for len(key) < 32 {
		key = append(key, '0')
	}
	return &Cipher{key: key[:32]}
}

// Encrypt encrypts plaintext and returns the iv:ciphertext hex encoding
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(encrypted), nil
}

// Decrypt decrypts an iv:ciphertext hex encoding produced by Encrypt
func (c *Cipher) Decrypt(encoded string) (string, error) {
	ivHex, cipherHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", fmt.Errorf("malformed ciphertext: missing iv separator")
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("malformed iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("malformed iv: got %d bytes, want %d", len(iv), aes.BlockSize)
	}

	encrypted, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", err)
	}
	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return "", fmt.Errorf("malformed ciphertext: length %d not a block multiple", len(encrypted))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	unpadded, err := pkcs7Unpad(decrypted, aes.BlockSize)
	if err != nil {
		return "", err
	}

	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("malformed ciphertext: empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, fmt.Errorf("malformed ciphertext: bad padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("malformed ciphertext: bad padding")
		}
	}
	return data[:len(data)-padding], nil
}
