package hydrate

// deepMerge merges override on top of base with override-wins semantics.
// Nested string-keyed maps merge key-by-key; any other value, including
// lists, is replaced wholesale by the override. Neither input is
// mutated. Merging a fully merged configuration with itself is a no-op.
func deepMerge(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if baseVal, exists := result[k]; exists {
			baseMap, baseIsMap := baseVal.(map[string]any)
			overMap, overIsMap := v.(map[string]any)
			if baseIsMap && overIsMap {
				result[k] = deepMerge(baseMap, overMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// mergeLayers folds the precedence chain lowest to highest into one
// configuration.
func mergeLayers(layers ...map[string]any) map[string]any {
	merged := map[string]any{}
	for _, layer := range layers {
		merged = deepMerge(merged, layer)
	}
	return merged
}

// copyTree deep-copies a config value tree so hydrated components never
// alias the parsed manifest's maps.
func copyTree(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyTree(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyTree(item)
		}
		return out
	default:
		return v
	}
}

// copyMap deep-copies a string-keyed config map; nil stays nil.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return copyTree(m).(map[string]any)
}
