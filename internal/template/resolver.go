package template

// Resolve returns the template that applies to filename.
//
// Every template whose file_pattern matches at the start of filename is a
// candidate. The candidate with the highest version wins; when several share
// that version the one registered first is returned. The boolean is false
// when nothing matches, which callers treat as "no applicable template"
// rather than an internal error.
func (r *Registry) Resolve(filename string) (*TemplateDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *TemplateDef
	for _, t := range r.templates {
		if !t.Matches(filename) {
			continue
		}
		// Strictly greater keeps the earliest registration on ties.
		if best == nil || t.Version > best.Version {
			best = t
		}
	}
	return best, best != nil
}

// Matching returns every template matching filename in registration order.
// Used for diagnostics when an operator wants to see why a file resolved
// the way it did.
func (r *Registry) Matching(filename string) []*TemplateDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*TemplateDef
	for _, t := range r.templates {
		if t.Matches(filename) {
			out = append(out, t)
		}
	}
	return out
}
