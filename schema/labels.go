package schema

// DefaultLabels is the built-in field label dictionary seeded at startup.
// The remote store's label sheet replaces it wholesale on sync.
func DefaultLabels() map[string]string {
	return map[string]string{
		"unwind2":     "Unwind 2 (Kg)",
		"rewind":      "Rewind (Kg)",
		"unwind1":     "Unwind 1 (Kg)",
		"infeed":      "Infeed (Kg)",
		"oven":        "Oven (Kg)",
		"speed":       "Speed (M/Min)",
		"dryer1":      "Dryer 1 (°C)",
		"dryer2":      "Dryer 2 (°C)",
		"dryer3":      "Dryer 3 (°C)",
		"chillerTemp": "Chiller (°C)",
		"axisTemp":    "Laminating Axis (°C)",
	}
}
