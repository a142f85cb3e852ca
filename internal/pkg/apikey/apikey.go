package apikey

import "golang.org/x/crypto/bcrypt"

// Keys are stored bcrypt-hashed in config so a leaked config file does not
// leak credentials.

func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func Verify(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
