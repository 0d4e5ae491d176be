package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CalculateSHA256 вычисляет SHA-256 хеш данных
func CalculateSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ChecksumMatches сверяет данные с ожидаемым хешем. Пустой expected
// означает, что хеш не записан, и проверка пропускается.
func ChecksumMatches(data []byte, expected string) bool {
	if expected == "" {
		return true
	}
	return strings.EqualFold(CalculateSHA256(data), expected)
}

// IsHexString проверяет, что строка содержит только шестнадцатеричные символы
func IsHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// ValidSHA256 проверяет формат хеша: 64 шестнадцатеричных символа
func ValidSHA256(s string) bool {
	return len(s) == 64 && IsHexString(s)
}
