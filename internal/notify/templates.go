package notify

import (
	"fmt"

	"github.com/clinicore/rxcore/internal/domain/prescription"
)

// Template identifies which notification a transition produces.
type Template string

const (
	// TemplateFilled is used when a prescription is filled with a drug
	// matching the patient's preference.
	TemplateFilled Template = "prescription-filled"

	// TemplateSubstitute is used when the fill dispensed a substitute of
	// a different brand/generic type than the patient prefers.
	TemplateSubstitute Template = "prescription-filled-substitute"

	// TemplateCancelled is used when a prescription is cancelled.
	TemplateCancelled Template = "prescription-cancelled"
)

// TemplateFor maps a committed transition to its notification template.
// Transitions with no patient-facing email (sending to a pharmacy is
// log-only) return ok=false.
func TemplateFor(ev prescription.TransitionEvent) (Template, bool) {
	switch ev.To {
	case prescription.StatusFilled:
		if ev.SubstituteUsed {
			return TemplateSubstitute, true
		}
		return TemplateFilled, true
	case prescription.StatusCancelled:
		return TemplateCancelled, true
	default:
		return "", false
	}
}

// Render produces the message body for a template.
func Render(t Template, ev prescription.TransitionEvent) (subject, body string) {
	switch t {
	case TemplateFilled:
		return "Your prescription has been filled",
			fmt.Sprintf("Your prescription %s has been filled and is ready for pickup.", ev.PrescriptionID)
	case TemplateSubstitute:
		return "Your prescription has been filled with a substitute",
			fmt.Sprintf("Your prescription %s has been filled. Your pharmacy did not stock your preferred brand/generic option, so an equivalent medication was dispensed instead.", ev.PrescriptionID)
	case TemplateCancelled:
		return "Your prescription has been cancelled",
			fmt.Sprintf("Your prescription %s has been cancelled. Contact your provider if you believe this is an error.", ev.PrescriptionID)
	default:
		return "", ""
	}
}
