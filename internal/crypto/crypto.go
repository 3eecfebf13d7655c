package crypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"license-api/internal/apperrors"
)

const (
	// gcmTagSize is the length of the GCM authentication tag in bytes
	gcmTagSize = 16

	// rsaKeyBits is the modulus length for generated signing keypairs
	rsaKeyBits = 2048
)

// Engine performs symmetric encryption of private keys at rest and
// RSA signing/verification of license payloads. The master key is
// derived once at construction and never mutated.
type Engine struct {
	masterKey []byte
}

// NewEngine derives the master key from the externally supplied secret.
// The process must refuse to start when the secret is shorter than
// minLength; SHA-256 turns the secret into a fixed 32-byte AES key.
func NewEngine(secret string, minLength int) (*Engine, error) {
	if len(secret) < minLength {
		return nil, fmt.Errorf("%w: master encryption key must be at least %d characters", apperrors.ErrConfiguration, minLength)
	}
	sum := sha256.Sum256([]byte(secret))
	return &Engine{masterKey: sum[:]}, nil
}

// GenerateKeyPair generates a new RSA-2048 keypair, returning the
// public key as PKIX PEM and the private key as PKCS#8 PEM.
func (e *Engine) GenerateKeyPair() (publicKey string, privateKey string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return string(pubPEM), string(privPEM), nil
}

// EncryptPrivateKey encrypts a private key with the master key using
// AES-256-GCM and a fresh random nonce.
// Returned blob format: "<nonceHex>:<tagHex>:<ciphertextHex>"
func (e *Engine) EncryptPrivateKey(privateKey string) (string, error) {
	block, err := aes.NewCipher(e.masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the tag to the ciphertext; split them so the stored
	// format keeps three separate fields
	sealed := gcm.Seal(nil, nonce, []byte(privateKey), nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext)), nil
}

// DecryptPrivateKey decrypts a stored private key blob. A blob without
// exactly three colon-delimited fields fails with ErrFormat; a failed
// tag verification fails with ErrAuthentication and never returns
// partially decrypted data.
func (e *Engine) DecryptPrivateKey(encryptedData string) (string, error) {
	parts := strings.Split(encryptedData, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: encrypted data must have 3 fields, got %d", apperrors.ErrFormat, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: invalid nonce hex", apperrors.ErrFormat)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid tag hex", apperrors.ErrFormat)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext hex", apperrors.ErrFormat)
	}

	block, err := aes.NewCipher(e.masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: invalid nonce length", apperrors.ErrFormat)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: private key decryption failed", apperrors.ErrAuthentication)
	}

	return string(plaintext), nil
}

// SignPayload signs the canonical payload bytes with an RSA private key
// (PKCS#8 PEM) using RSA-SHA256, returning a base64 signature.
func (e *Engine) SignPayload(data []byte, privateKeyPEM string) (string, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return "", fmt.Errorf("%w: invalid private key PEM", apperrors.ErrFormat)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("%w: not an RSA private key", apperrors.ErrFormat)
	}

	digest := sha256.Sum256(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// VerifySignature verifies a base64 RSA-SHA256 signature over the
// canonical payload bytes against a PKIX PEM public key.
func (e *Engine) VerifySignature(data []byte, signature string, publicKeyPEM string) bool {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return false
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], sig) == nil
}
