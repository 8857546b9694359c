package generated

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// SpecYAML — контракт API, из которого сгенерирован пакет.
//
//go:embed openapi.yaml
var SpecYAML []byte

// GetSwagger загружает и проверяет встроенный контракт.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(SpecYAML)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("некорректный OpenAPI контракт: %w", err)
	}
	return doc, nil
}
