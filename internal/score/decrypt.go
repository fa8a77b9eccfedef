package score

import (
	"crypto/md5"
	"crypto/rc4"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrBadPayload is returned when the submitted blob doesn't decode or
// decrypt into the expected field layout; the client sees "error: no".
var ErrBadPayload = errors.New("score: malformed submission payload")

// submissionKeyPrefix seeds the per-version stream-cipher key. The client
// derives its key the same way from its own build string, so both sides
// arrive at identical keystream for a given (version, iv) pair.
const submissionKeyPrefix = "osu!-scoreburgr---"

// decryptPayload reverses the client's submission encryption: the score
// line and iv arrive base64-encoded, and the cipher key is the md5 of the
// version-derived key string mixed with the iv.
func decryptPayload(dataB64, ivB64, osuVersion string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(data) == 0 || len(iv) == 0 {
		return nil, ErrBadPayload
	}

	key := md5.Sum(append([]byte(submissionKeyPrefix+osuVersion), iv...))
	cipher, err := rc4.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	out := make([]byte, len(data))
	cipher.XORKeyStream(out, data)
	return out, nil
}

// encryptPayload is decryptPayload's inverse, used by tests to build
// submissions the way the client would.
func encryptPayload(plaintext []byte, iv []byte, osuVersion string) (dataB64, ivB64 string, err error) {
	key := md5.Sum(append([]byte(submissionKeyPrefix+osuVersion), iv...))
	cipher, err := rc4.NewCipher(key[:])
	if err != nil {
		return "", "", err
	}
	out := make([]byte, len(plaintext))
	cipher.XORKeyStream(out, plaintext)
	return base64.StdEncoding.EncodeToString(out), base64.StdEncoding.EncodeToString(iv), nil
}
