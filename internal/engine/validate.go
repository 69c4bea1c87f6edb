package engine

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/landform-io/landform/internal/ir"
	"github.com/landform-io/landform/internal/provider"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateResources checks declaration shape before any graph work:
// required fields, kind grammar, key uniqueness across the whole
// configuration (disabled declarations included).
func validateResources(resources []*ir.Resource) error {
	seen := make(map[ir.Key]bool, len(resources))
	for _, res := range resources {
		if err := validate.Struct(res); err != nil {
			return NewInvalidDeclaration(
				fmt.Sprintf("resource %q/%q", res.Kind, res.Name), err)
		}
		if _, err := provider.Name(res.Kind); err != nil {
			return NewInvalidDeclaration("invalid kind", err).WithKey(res.Key())
		}
		if strings.Contains(res.Kind, "/") || strings.Contains(res.Name, "/") {
			return NewInvalidDeclaration(
				fmt.Sprintf("kind and name must not contain %q", "/"), nil).WithKey(res.Key())
		}
		if res.Count > 0 && len(res.ForEach) > 0 {
			return NewInvalidDeclaration("count and forEach are mutually exclusive", nil).WithKey(res.Key())
		}
		key := res.Key()
		if seen[key] {
			return NewInvalidDeclaration(fmt.Sprintf("duplicate resource %s", key), nil).WithKey(key)
		}
		seen[key] = true
	}
	return nil
}
