package jolteon

// Capability describes what a module handler processes and what services it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet describes event selection criteria for subscription matching.
type InterestSet struct {
	// Kinds restricts delivery to the listed event kinds when non-empty.
	Kinds []EventKind
	// RequireReaction restricts delivery to events carrying a reaction payload.
	RequireReaction bool
	// RequireCommand restricts delivery to events carrying a command payload.
	RequireCommand bool
	// CommandNames restricts command events to the listed canonical names.
	CommandNames []string
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if i.RequireReaction && event.Reaction == nil {
		return false
	}
	if i.RequireCommand && event.Command == nil {
		return false
	}
	if len(i.CommandNames) > 0 {
		if event.Command == nil {
			return false
		}
		if !containsName(i.CommandNames, NormalizeCommandName(event.Command.Name)) {
			return false
		}
	}

	return true
}

// Allows reports whether filter is a narrowing of this interest set.
// A subscription filter is allowed when every restriction declared here is
// preserved or further restricted by the filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allKindsIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if i.RequireReaction && !filter.RequireReaction {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 && !allNamesIncluded(filter.CommandNames, i.CommandNames) {
		return false
	}

	return true
}

// allKindsIncluded reports whether every filter kind is covered by allowed.
// An empty filter would widen the selection, so it is rejected.
func allKindsIncluded(filter []EventKind, allowed []EventKind) bool {
	if len(filter) == 0 {
		return false
	}
	for _, kind := range filter {
		if !containsKind(allowed, kind) {
			return false
		}
	}

	return true
}

// allNamesIncluded reports whether every filter command name is covered by allowed.
func allNamesIncluded(filter []string, allowed []string) bool {
	if len(filter) == 0 {
		return false
	}
	for _, name := range filter {
		if !containsName(allowed, NormalizeCommandName(name)) {
			return false
		}
	}

	return true
}

func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

func containsName(names []string, target string) bool {
	for _, candidate := range names {
		if NormalizeCommandName(candidate) == target {
			return true
		}
	}

	return false
}
