package domain

// Stable message templates. The HTTP boundary (out of this module's scope)
// relies on these staying distinct per error kind.
const (
	MsgAlreadyExists = "the feature flag '%s' already exists, please choose a different name"
	MsgNotExists     = "the feature flag '%s' doesn't exist, please verify the name"

	MsgErrorWhileAdding   = "an error occurred while adding the feature flag '%s'"
	MsgErrorWhileUpdating = "an error occurred while updating the feature flag '%s'"
	MsgErrorWhileDeleting = "an error occurred while deleting the feature flag '%s'"

	MsgDisabledFeature = "disabled features cannot be retrieved"
	MsgWrongKind       = "the feature '%s' is not of kind '%s', its value cannot be retrieved"

	MsgNonExistentFlagRequested = "non-existent feature flag '%s' requested, returning false (treat-missing-as-false enabled)"

	MsgValidationRequiredField  = "the field '%s' is required"
	MsgValidationNoSubKind      = "when a flag is of kind '%s', it can't have a sub-kind defined"
	MsgValidationBooleanNoValue = "a boolean feature flag must have an empty value"
)
