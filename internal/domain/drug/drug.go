// Package drug holds the drug catalog types: identity, NDC code and
// brand/generic classification.
package drug

import (
	"regexp"
	"strings"

	"github.com/clinicore/rxcore/internal/errs"
)

// Type classifies a drug as brand-name, generic, or unspecified.
type Type string

const (
	TypeGeneric      Type = "Generic"
	TypeBrandName    Type = "BrandName"
	TypeNotSpecified Type = "NotSpecified"
)

var typeDisplayNames = map[Type]string{
	TypeGeneric:      "Generic",
	TypeBrandName:    "Brand Name",
	TypeNotSpecified: "Not Specified",
}

// DisplayName returns the patient-facing name of the type.
func (t Type) DisplayName() string {
	if name, ok := typeDisplayNames[t]; ok {
		return name
	}
	return typeDisplayNames[TypeNotSpecified]
}

// Info returns the id/name projection used by boundary serialization.
func (t Type) Info() map[string]string {
	return map[string]string{"id": string(t), "name": t.DisplayName()}
}

// Types lists all drug types.
func Types() []Type {
	return []Type{TypeGeneric, TypeBrandName, TypeNotSpecified}
}

// ParseType resolves a type from its id or display name. Unrecognized
// input maps to TypeNotSpecified, which is the "unknown" variant.
func ParseType(s string) Type {
	for t, name := range typeDisplayNames {
		if s == string(t) || strings.EqualFold(s, name) {
			return t
		}
	}
	return TypeNotSpecified
}

// codePattern is the NDC family key format. Prescriptions are matched to
// stocked inventory by this code regardless of brand/generic variant.
var codePattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{2}$`)

// ValidCode reports whether code is a well-formed NDC code.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Drug is a prescribable substance in the catalog. Records are treated as
// immutable once referenced by a fill decision: historical fills keep the
// drug id they resolved, so later type edits never rewrite them.
type Drug struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	GenericName string `json:"genericName"`
	Description string `json:"description"`
	Type        Type   `json:"type"`
}

// Validate checks the catalog invariants for a drug record.
func (d *Drug) Validate() error {
	if !ValidCode(d.Code) {
		return errs.Validationf("code", "%q is not a valid NDC code", d.Code)
	}
	if strings.TrimSpace(d.Name) == "" {
		return errs.Validation("name", "must not be empty")
	}
	if _, ok := typeDisplayNames[d.Type]; !ok {
		return errs.Validationf("type", "unknown drug type %q", d.Type)
	}
	return nil
}
