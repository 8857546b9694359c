// Пакет integrity — SHA-256 дайджест содержимого документа и его проверка.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"
)

// DigestSize — длина hex-дайджеста в символах.
const DigestSize = sha256.Size * 2

// Digest возвращает hex-дайджест SHA-256 (нижний регистр).
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify сравнивает дайджест данных с ожидаемым. Регистр hex не важен.
func Verify(data []byte, expected string) bool {
	return Equal(Digest(data), expected)
}

// Equal сравнивает два hex-дайджеста без учёта регистра и пробелов по краям.
func Equal(actual, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected))
}

// Reader считает SHA-256 и количество байт на лету при чтении из источника.
// Паттерн: io.TeeReader → hasher.
type Reader struct {
	src    io.Reader
	hasher hash.Hash
	n      int64
}

// NewReader оборачивает источник r.
func NewReader(r io.Reader) *Reader {
	h := sha256.New()
	return &Reader{src: io.TeeReader(r, h), hasher: h}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	r.n += int64(n)
	return n, err
}

// Sum возвращает hex-дайджест прочитанных байт.
func (r *Reader) Sum() string {
	return hex.EncodeToString(r.hasher.Sum(nil))
}

// N возвращает количество прочитанных байт.
func (r *Reader) N() int64 {
	return r.n
}
