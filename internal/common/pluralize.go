// Package common — pluralize.go содержит вспомогательные функции форматирования чисел.
package common

import "fmt"

// FormatTokensAmount создаёт строку вида "+5 токенов" или "-1 токен".
// Знак «+» или «-» добавляется автоматически.
//
// Примеры:
//
//	FormatTokensAmount(5)  → "+5 токенов"
//	FormatTokensAmount(-1) → "-1 токен"
func FormatTokensAmount(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%d %s", amount, PluralizeTokens(amount))
	}
	return fmt.Sprintf("%d %s", amount, PluralizeTokens(amount))
}

// FormatNumber форматирует число с разделителями тысяч (точками, как принято в рупиях).
// Пример: FormatNumber(35000) → "35.000"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s.%03d", FormatNumber(n/1000), n%1000)
}
