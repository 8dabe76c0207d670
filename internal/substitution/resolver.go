// Package substitution resolves which stocked drug unit satisfies a
// prescription under the patient's brand/generic preference.
package substitution

import (
	"fmt"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/errs"
)

// Result is the outcome of a successful resolution. PreferenceSatisfied
// is false when the patient's preferred type was not in stock and a unit
// of a different type from the same NDC family was used instead; that
// fallback triggers a distinct patient notification downstream.
type Result struct {
	Drug                drug.Drug
	PreferenceSatisfied bool
}

// Resolve picks a stocked drug matching the prescription's NDC code.
//
// A unit matching both code and preferred type wins. Failing that, any
// unit matching the code is an acceptable substitute. If nothing in stock
// matches the code, the fill must not proceed and ErrDrugNotStocked is
// returned. When several units match code+type they are interchangeable
// and any one may be returned.
//
// A NotSpecified preference accepts the first code match outright and is
// always considered satisfied.
func Resolve(stock []drug.Drug, code string, preferred drug.Type) (*Result, error) {
	var fallback *drug.Drug
	for i := range stock {
		d := stock[i]
		if d.Code != code {
			continue
		}
		if preferred == drug.TypeNotSpecified || d.Type == preferred {
			return &Result{Drug: d, PreferenceSatisfied: true}, nil
		}
		if fallback == nil {
			fallback = &d
		}
	}
	if fallback != nil {
		return &Result{Drug: *fallback, PreferenceSatisfied: false}, nil
	}
	return nil, fmt.Errorf("%w: no stocked drug matches code %s", errs.ErrDrugNotStocked, code)
}
