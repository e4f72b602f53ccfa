package catalog

import "github.com/llmcore/llmcore/plug"

// DefaultChatPipeline is the canonical ten-stage chat pipeline. Providers
// may register a different order; the Runner is agnostic to this one.
func (c *Catalog) DefaultChatPipeline() []plug.Spec {
	return []plug.Spec{
		{Plug: c.ValidateProvider()},
		{Plug: c.FetchConfiguration()},
		{Plug: c.ManageContext()},
		{Plug: c.CacheLookup(), Opts: CacheOptions{}},
		{Plug: c.CircuitBreakerPlug()},
		{Plug: c.BuildRequestPlug()},
		{Plug: c.ExecuteRequestPlug()},
		{Plug: c.ParseResponsePlug()},
		{Plug: c.TrackCostPlug()},
		{Plug: c.CacheStorePlug(), Opts: CacheOptions{}},
	}
}

// DefaultStreamPipeline omits both cache stages (streaming is
// non-idempotent, so the facade would bypass them anyway) and the parse
// stage (ExecuteRequest aggregates the final result itself while handing
// chunks to the coordinator).
func (c *Catalog) DefaultStreamPipeline() []plug.Spec {
	return []plug.Spec{
		{Plug: c.ValidateProvider()},
		{Plug: c.FetchConfiguration()},
		{Plug: c.ManageContext()},
		{Plug: c.CircuitBreakerPlug()},
		{Plug: c.BuildRequestPlug()},
		{Plug: c.ExecuteRequestPlug()},
	}
}
