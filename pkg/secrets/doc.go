// Package secrets encrypts small payloads, such as OAuth access and refresh
// tokens, for storage at rest.
//
// A Cipher is built once at startup from a single 32-byte master key. The
// working key is derived from it with HKDF-SHA-256 and a purpose string, so the
// same master key can serve several purposes without key reuse. Payloads are
// sealed with AES-256-GCM; the random nonce is prepended to the ciphertext.
//
// Associated data binds a ciphertext to the record it belongs to (for example
// an account ID). Opening with different associated data, a different key or a
// tampered ciphertext always fails with ErrDecryptionFailed; it never returns
// garbage plaintext.
//
// # Usage
//
//	key, _ := secrets.ParseKey(os.Getenv("OAUTH_TOKEN_KEY")) // base64, 32 bytes
//	c, err := secrets.NewCipher(key, secrets.WithPurpose("oauth-token-vault-v1"))
//	if err != nil {
//		return err
//	}
//
//	sealed, err := c.EncryptString(accessToken, []byte(accountID.String()))
//	plain, err := c.DecryptString(sealed, []byte(accountID.String()))
//
// Keys are generated with GenerateKey and exported with EncodeKey.
package secrets
