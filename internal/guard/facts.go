package guard

import "slices"

// MaxDepth bounds named-guard reference chains.
const MaxDepth = 16

// Built-in facts available to every chart.
const (
	FactHasRequest  = "hasRequest"
	FactIsRequester = "isRequester"
	FactHasVariant  = "hasVariant"
	FactIsLive      = "isLive"
	FactIsHeld      = "isHeld"
	FactIsHolder    = "isHolder"
	FactIsModified  = "isModified"
	FactHasZombie   = "hasZombie"
)

// Facts lists the built-in function names.
var Facts = []string{
	FactHasRequest,
	FactIsRequester,
	FactHasVariant,
	FactIsLive,
	FactIsHeld,
	FactIsHolder,
	FactIsModified,
	FactHasZombie,
}

// IsFact reports whether name is a built-in fact.
func IsFact(name string) bool {
	return slices.Contains(Facts, name)
}
