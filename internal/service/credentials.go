package service

import (
	"encoding/json"

	"github.com/vistaflix/tvlink/internal/util"
	"github.com/vistaflix/tvlink/internal/xtream"
)

// sealCredentials serializes provider credentials for storage, encrypting
// when a key is configured. An empty key stores plaintext JSON; config
// validation warns about that in production.
func sealCredentials(encryptionKey string, creds xtream.Credentials) (string, error) {
	data, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	if encryptionKey == "" {
		return string(data), nil
	}
	return util.Encrypt(encryptionKey, string(data))
}

func openCredentials(encryptionKey, sealed string) (xtream.Credentials, error) {
	payload := sealed
	if encryptionKey != "" {
		decrypted, err := util.Decrypt(encryptionKey, sealed)
		if err != nil {
			return xtream.Credentials{}, err
		}
		payload = decrypted
	}

	var creds xtream.Credentials
	if err := json.Unmarshal([]byte(payload), &creds); err != nil {
		return xtream.Credentials{}, err
	}
	return creds, nil
}
