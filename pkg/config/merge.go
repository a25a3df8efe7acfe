package config

// mergeTools merges built-in and user-defined tool catalog entries.
// User-defined tools override built-in tools with the same name.
func mergeTools(builtin, user map[string]ToolCatalogEntry) map[string]ToolCatalogEntry {
	result := make(map[string]ToolCatalogEntry, len(builtin)+len(user))
	for name, t := range builtin {
		result[name] = t
	}
	for name, t := range user {
		result[name] = t
	}
	return result
}

// mergeProviders merges built-in and user-defined provider entries.
// User-defined providers override built-in providers with the same name.
func mergeProviders(builtin, user map[string]ProviderCatalogEntry) map[string]ProviderCatalogEntry {
	result := make(map[string]ProviderCatalogEntry, len(builtin)+len(user))
	for name, p := range builtin {
		result[name] = p
	}
	for name, p := range user {
		result[name] = p
	}
	return result
}

// mergeChainEntries merges built-in and user-defined fallback chains.
// User-defined chains override built-in chains with the same name.
func mergeChainEntries(builtin, user map[string]FallbackChainEntry) map[string]FallbackChainEntry {
	result := make(map[string]FallbackChainEntry, len(builtin)+len(user))
	for name, c := range builtin {
		result[name] = c
	}
	for name, c := range user {
		result[name] = c
	}
	return result
}
