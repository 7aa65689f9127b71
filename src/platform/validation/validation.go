// Package validation wires a single process-wide validator.Validate
// instance, registering the custom tags the rest of fatorch's config and
// options structs rely on (unique, enum, notblank, hostportlist).
package validation

import (
	"fatorch/src/util"

	"github.com/go-playground/validator/v10"
)

// Instance is the shared validator used by every options/config struct
// across the platform and domain packages, the way the teacher's own
// config/lifecycle/health/routing code expects a package-level instance.
var Instance *validator.Validate

func init() {
	Instance = validator.New(validator.WithRequiredStructEnabled())

	mustRegister("unique", util.ValidateUnique)
	mustRegister("enum", util.ValidateEnum)
	mustRegister("notblank", util.ValidateNotBlank)
	mustRegister("hostportlist", util.ValidateHostPortList)
}

func mustRegister(tag string, fn validator.Func) {
	if err := Instance.RegisterValidation(tag, fn); err != nil {
		panic("validation: failed to register tag '" + tag + "': " + err.Error())
	}
}
