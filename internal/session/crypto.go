package session

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errDecrypt = errors.New("session: cannot decrypt payload")

func deriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// seal encrypts plaintext with a random nonce prepended to the box.
func seal(key [32]byte, plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &key), nil
}

func open(key [32]byte, box []byte) ([]byte, error) {
	if len(box) < nonceSize {
		return nil, errDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plaintext, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &key)
	if !ok {
		return nil, errDecrypt
	}
	return plaintext, nil
}
