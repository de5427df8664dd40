package model

// ViolationKind is the closed vocabulary of anti-cheat events. Inputs are
// validated at the system boundary; unknown kinds are rejected.
type ViolationKind string

const (
	ViolationFocusLoss      ViolationKind = "focus_loss"
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationRightClick     ViolationKind = "right_click"
	ViolationShortcutKey    ViolationKind = "shortcut_key"
	ViolationDevTools       ViolationKind = "devtools"
)

// Serious reports whether a single occurrence forces disqualification.
func (k ViolationKind) Serious() bool {
	switch k {
	case ViolationFocusLoss, ViolationTabSwitch, ViolationFullscreenExit:
		return true
	}
	return false
}

// Valid reports whether the kind belongs to the closed vocabulary.
func (k ViolationKind) Valid() bool {
	switch k {
	case ViolationFocusLoss, ViolationTabSwitch, ViolationFullscreenExit,
		ViolationRightClick, ViolationShortcutKey, ViolationDevTools:
		return true
	}
	return false
}

const ReasonMultipleViolations = "multiple violations"
