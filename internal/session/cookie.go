package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Имя cookie с идентификатором сессии консоли.
const SessionCookieName = "fleetdesk_session"

// CookieCodec — шифрованный cookie, несущий только идентификатор сессии.
// Учётные данные хранятся в Store, в cookie их нет.
type CookieCodec struct {
	gcm    cipher.AEAD
	secure bool
	maxAge time.Duration
}

// NewCookieCodec создаёт кодек cookie на AES-256-GCM.
// key — base64 32-байтового ключа или произвольная строка (хешируется SHA-256).
// Пустой key — случайный ключ на время жизни процесса.
func NewCookieCodec(key string, secure bool, maxAge time.Duration) (*CookieCodec, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			h := sha256.Sum256([]byte(key))
			keyBytes = h[:]
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &CookieCodec{gcm: gcm, secure: secure, maxAge: maxAge}, nil
}

// NewID генерирует идентификатор новой сессии.
func NewID() string {
	return uuid.NewString()
}

// Encode шифрует идентификатор сессии.
func (c *CookieCodec) Encode(id string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(id), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode расшифровывает идентификатор сессии.
func (c *CookieCodec) Decode(value string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("ошибка декодирования base64: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("зашифрованные данные слишком короткие")
	}
	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка дешифрования cookie: %w", err)
	}
	return string(plain), nil
}

// SetCookie записывает cookie с идентификатором сессии в ответ.
func (c *CookieCodec) SetCookie(w http.ResponseWriter, id string) error {
	value, err := c.Encode(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// FromRequest извлекает идентификатор сессии из cookie запроса.
// Возвращает "", nil если cookie отсутствует.
func (c *CookieCodec) FromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", nil
		}
		return "", err
	}
	return c.Decode(cookie.Value)
}

// ClearCookie удаляет cookie сессии.
func (c *CookieCodec) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
