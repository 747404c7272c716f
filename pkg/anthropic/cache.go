package anthropic

// BuildCachedSystemBlocks returns a single system block marked as an
// ephemeral cache breakpoint. Enrichment prompts share one instruction
// preamble per operation, so consecutive items in a batch read it from
// the cache. An empty ttl uses the API default of five minutes.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
