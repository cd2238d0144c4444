package exchange

import (
	"context"
	"fmt"
	"net/url"
)

type walletResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		TotalEquity num    `json:"totalEquity"`
	} `json:"list"`
}

// Equity returns the total account equity in USD.
func (c *Client) Equity(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("accountType", c.accountType)

	var res walletResult
	err := c.get(ctx, "/v5/account/wallet-balance", params, true, &res)
	if err != nil {
		return 0, err
	}
	if len(res.List) == 0 {
		return 0, fmt.Errorf("no %s wallet in response", c.accountType)
	}
	return float64(res.List[0].TotalEquity), nil
}
