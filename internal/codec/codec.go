// Пакет codec — inline-кодировка содержимого документа (стандартный base64).
//
// Encode никогда не вставляет пробелы и переносы строк.
// Decode снисходителен к пробельным символам: часть старых записей
// хранилась с переносами, поэтому сначала они удаляются, затем остаток
// строго проверяется по алфавиту и правилу выравнивания '='.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/bigkaa/docstore/internal/domain/docerr"
)

// EncodedLen возвращает длину кодировки n байт: ceil(n/3)*4.
func EncodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

// Encode кодирует байты в base64 с выравниванием.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode декодирует inline-представление.
// Ошибки оборачивают docerr.ErrInvalidEncoding.
func Decode(text string) ([]byte, error) {
	clean := stripSpace(text)

	if err := validate(clean); err != nil {
		return nil, fmt.Errorf("%w: %v", docerr.ErrInvalidEncoding, err)
	}

	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docerr.ErrInvalidEncoding, err)
	}
	return data, nil
}

// validate проверяет алфавит и правило '=': не более двух символов
// выравнивания, только в конце, общая длина кратна 4.
func validate(s string) error {
	if len(s)%4 != 0 {
		return fmt.Errorf("длина %d не кратна 4", len(s))
	}

	body := strings.TrimRight(s, "=")
	pad := len(s) - len(body)
	if pad > 2 {
		return fmt.Errorf("%d символов выравнивания", pad)
	}

	for i := 0; i < len(body); i++ {
		if !inAlphabet(body[i]) {
			return fmt.Errorf("недопустимый символ %q в позиции %d", body[i], i)
		}
	}
	return nil
}

func inAlphabet(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '+' || c == '/'
}

func stripSpace(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) == -1 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
