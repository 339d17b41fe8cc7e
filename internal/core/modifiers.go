package core

// SeedModifiers creates one zero modifier per key event, inflows first.
func SeedModifiers(events KeyEvents) []EventModifier {
	mods := make([]EventModifier, 0, len(events.InflowEvents)+len(events.OutflowEvents))
	for _, e := range events.InflowEvents {
		mods = append(mods, EventModifier{Name: e.Name})
	}
	for _, e := range events.OutflowEvents {
		mods = append(mods, EventModifier{Name: e.Name})
	}
	return mods
}

// ActiveModifiers drops modifiers that change neither value nor timing.
func ActiveModifiers(mods []EventModifier) []EventModifier {
	out := make([]EventModifier, 0, len(mods))
	for _, m := range mods {
		if !m.IsZero() {
			out = append(out, m)
		}
	}
	return out
}
