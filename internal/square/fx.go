package square

import "go.uber.org/fx"

var Module = fx.Module("square",
	fx.Provide(
		NewClient,
		func(c *Client) OrderFetcher { return c },
	),
)
