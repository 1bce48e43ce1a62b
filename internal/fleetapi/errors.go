package fleetapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind — категория ошибки обращения к backend.
type Kind string

const (
	// KindSession — учётные данные отсутствуют, просрочены или отвергнуты (401).
	KindSession Kind = "session"
	// KindTransport — сеть, таймаут, нечитаемый ответ, 5xx без описания.
	KindTransport Kind = "transport"
	// KindValidation — 422, ошибки по полям.
	KindValidation Kind = "validation"
	// KindBusiness — прочие 4xx/5xx с сообщением backend.
	KindBusiness Kind = "business"
)

// Тексты, которые видит пользователь.
const (
	MessageTransport = "Ошибка сервера, попробуйте позже"
	MessageSession   = "Сессия истекла, войдите снова"
)

// ErrSession совпадает через errors.Is с любой ошибкой вида KindSession.
var ErrSession = errors.New("сессия истекла")

// FieldError — ошибка валидации одного поля.
type FieldError struct {
	Field   string
	Message string
}

// Error — нормализованная ошибка backend.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is сопоставляет ошибку сессии с ErrSession.
func (e *Error) Is(target error) bool {
	return target == ErrSession && e.Kind == KindSession
}

// validationItem — элемент списка ошибок 422: {"loc": [...], "msg": "..."}.
type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// Normalize приводит ответ backend с кодом status к Error.
// Тело может быть строкой, объектом с detail/message или
// (для 422) списком {loc, msg}.
func Normalize(status int, body []byte) *Error {
	if status == http.StatusUnauthorized {
		return &Error{Kind: KindSession, Status: status, Message: extractMessage(body)}
	}

	if status == http.StatusUnprocessableEntity {
		e := &Error{Kind: KindValidation, Status: status}
		var payload struct {
			Detail json.RawMessage `json:"detail"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
			var items []validationItem
			if json.Unmarshal(payload.Detail, &items) == nil {
				msgs := make([]string, 0, len(items))
				for _, it := range items {
					e.Fields = append(e.Fields, FieldError{Field: locField(it.Loc), Message: it.Msg})
					if it.Msg != "" {
						msgs = append(msgs, it.Msg)
					}
				}
				e.Message = strings.Join(msgs, ", ")
			}
		}
		if e.Message == "" {
			e.Message = extractMessage(body)
		}
		if e.Message == "" {
			e.Message = "Проверьте введённые данные"
		}
		return e
	}

	msg := extractMessage(body)
	if msg == "" && status >= http.StatusInternalServerError {
		return &Error{Kind: KindTransport, Status: status}
	}
	if msg == "" {
		msg = fmt.Sprintf("Запрос отклонён (HTTP %d)", status)
	}
	return &Error{Kind: KindBusiness, Status: status, Message: msg}
}

// extractMessage достаёт человекочитаемый текст: JSON-строку,
// поле detail (строкой) или поле message.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(body, &s) == nil {
		return s
	}
	var obj struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &obj) == nil {
		if d, ok := obj.Detail.(string); ok && d != "" {
			return d
		}
		if obj.Message != "" {
			return obj.Message
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "<") {
		// HTML-страница прокси, пользователю не показываем.
		return ""
	}
	return text
}

// locField возвращает имя поля из loc (последний строковый элемент).
func locField(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok {
			return s
		}
	}
	return ""
}

// Message превращает любую ошибку в текст для пользователя.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return MessageTransport
	}
	switch e.Kind {
	case KindSession:
		return MessageSession
	case KindValidation, KindBusiness:
		if e.Message != "" {
			return e.Message
		}
	}
	return MessageTransport
}

// IsNotFound сообщает, что backend ответил 404.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}
