package thermal

// Classify maps an accepted interval to a regime. Combinations that
// contradict the reported action (heating with a falling temperature,
// cooling with a rising one) signal a transitional or inconsistent
// sample and are discarded rather than misclassified.
func Classify(action HVACAction, tempChange float64) (Regime, bool) {
	switch {
	case action == ActionHeating && tempChange > 0:
		return RegimeHeating, true
	case action == ActionCooling && tempChange < 0:
		return RegimeCooling, true
	case action == ActionIdle || action == ActionOff:
		// Passive drift can go either direction.
		return RegimeNatural, true
	default:
		return RegimeUnknown, false
	}
}
