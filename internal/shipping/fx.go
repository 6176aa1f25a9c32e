package shipping

import "go.uber.org/fx"

var Module = fx.Module("shipping",
	fx.Provide(
		NewClient,
		func(c *Client) Purchaser { return c },
	),
)
