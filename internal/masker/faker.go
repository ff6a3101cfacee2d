package masker

import (
	"github.com/brianvoe/gofakeit/v6"
)

// FakerFunc is a function that generates fake data.
type FakerFunc func() string

// fakerFunctions maps faker template names to their implementations.
// These values are random, not derived: use them for columns that need
// realistic filler without cross-table consistency.
var fakerFunctions = map[string]FakerFunc{
	"phone":    func() string { return gofakeit.Phone() },
	"company":  func() string { return gofakeit.Company() },
	"username": func() string { return gofakeit.Username() },
	"uuid":     func() string { return gofakeit.UUID() },
	"ipv4":     func() string { return gofakeit.IPv4Address() },
	"date":     func() string { return gofakeit.Date().Format("2006-01-02") },
	"text":     func() string { return gofakeit.Sentence(10) },
	"number":   func() string { return gofakeit.DigitN(8) },
	"password": func() string { return gofakeit.Password(true, true, true, true, false, 32) },
}

// GetFakerFunc returns the faker function for a given name.
// Returns nil if the function doesn't exist.
func GetFakerFunc(name string) FakerFunc {
	return fakerFunctions[name]
}

// ListFakerFunctions returns all available faker function names.
func ListFakerFunctions() []string {
	names := make([]string, 0, len(fakerFunctions))
	for name := range fakerFunctions {
		names = append(names, name)
	}
	return names
}
