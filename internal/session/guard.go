// Пакет session — жизненный цикл учётных данных консоли:
// проверка токена (guard), хранилища сессий и шифрованный cookie.
//
// Проверка токена носит рекомендательный характер: подпись не
// проверяется, backend остаётся единственным источником истины и
// отвечает 401 на просроченные токены.
package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Reason — причина, по которой сессия непригодна.
type Reason string

const (
	// ReasonNone — сессия действительна.
	ReasonNone Reason = ""
	// ReasonAbsent — токен отсутствует.
	ReasonAbsent Reason = "absent"
	// ReasonMalformed — токен не разбирается или в нём нет exp.
	ReasonMalformed Reason = "malformed"
	// ReasonExpired — exp в прошлом.
	ReasonExpired Reason = "expired"
	// ReasonRejected — backend ответил 401.
	ReasonRejected Reason = "rejected"
	// ReasonLogout — явный выход пользователя.
	ReasonLogout Reason = "logout"
)

// Verdict — результат проверки токена.
type Verdict struct {
	Valid  bool
	Reason Reason
	// ExpiresAt — момент истечения (заполнен, если exp прочитан).
	ExpiresAt time.Time
	// Claims — разобранная полезная нагрузка токена.
	Claims jwt.MapClaims
}

var segmentParser = jwt.NewParser()

// Check проверяет сырой bearer-токен на момент now.
// Токен считается просроченным, если exp*1000 < now в миллисекундах.
// Функция не паникует и никогда не признаёт валидным некорректный вход.
func Check(raw string, now time.Time) Verdict {
	if raw == "" {
		return Verdict{Reason: ReasonAbsent}
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Verdict{Reason: ReasonMalformed}
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return Verdict{Reason: ReasonMalformed}
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil || claims == nil {
		return Verdict{Reason: ReasonMalformed}
	}

	expSeconds, ok := claims["exp"].(float64)
	if !ok {
		return Verdict{Reason: ReasonMalformed, Claims: claims}
	}
	expMillis := expSeconds * 1000

	expiresAt := time.UnixMilli(int64(expMillis))
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	v := Verdict{ExpiresAt: expiresAt, Claims: claims}
	if expMillis < float64(now.UnixMilli()) {
		v.Reason = ReasonExpired
		return v
	}
	v.Valid = true
	return v
}

// RoleID извлекает role_id из claims, если он там есть.
func (v Verdict) RoleID() (int, bool) {
	raw, ok := v.Claims["role_id"]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
