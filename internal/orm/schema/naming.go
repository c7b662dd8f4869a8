package schema

import "strings"

// ToSnakeCase converts a PascalCase or camelCase name to snake_case
func ToSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// Boundaries: "userId" -> "user_id", "HTTPServer" -> "http_server"
			if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' && prev != '_' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// Pluralize applies simple English pluralization
func Pluralize(s string) string {
	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, "s") ||
		strings.HasSuffix(lower, "x") ||
		strings.HasSuffix(lower, "z") ||
		strings.HasSuffix(lower, "ch") ||
		strings.HasSuffix(lower, "sh") {
		return s + "es"
	}
	if strings.HasSuffix(lower, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])) {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}

// TableNameFor converts an entity name to a table name (snake_case plural)
func TableNameFor(entityName string) string {
	return Pluralize(ToSnakeCase(entityName))
}

// ColumnName returns the column name of a property
func ColumnName(propertyName string) string {
	return ToSnakeCase(propertyName)
}
