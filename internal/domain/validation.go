package domain

import (
	"fmt"
	"strings"
)

// Validate checks the Kind/SubKind/Value rules before a record may reach the
// cache or a backend. It returns a *ValidationError listing every violation,
// or nil when the record is valid.
func (r *FlagRecord) Validate() error {
	var messages []string

	if strings.TrimSpace(r.Name) == "" {
		messages = append(messages, fmt.Sprintf(MsgValidationRequiredField, "Name"))
	}

	if r.Kind == KindEnvironmentVariable && strings.TrimSpace(r.Value) == "" {
		messages = append(messages, fmt.Sprintf(MsgValidationRequiredField, "Value"))
	}

	if r.Kind == KindEnvironmentVariable && r.SubKind != nil {
		messages = append(messages, fmt.Sprintf(MsgValidationNoSubKind, KindEnvironmentVariable))
	}

	if r.Kind == KindFeatureFlag && r.SubKind == nil {
		messages = append(messages, fmt.Sprintf(MsgValidationRequiredField, "SubKind"))
	}

	if r.SubKind != nil && *r.SubKind == SubKindPercentageFilter && strings.TrimSpace(r.Value) == "" {
		messages = append(messages, fmt.Sprintf(MsgValidationRequiredField, "Value"))
	}

	if r.SubKind != nil && *r.SubKind == SubKindBoolean && strings.TrimSpace(r.Value) != "" {
		messages = append(messages, MsgValidationBooleanNoValue)
	}

	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}
