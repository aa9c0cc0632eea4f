package hyperliquid

// Wire types for the public info endpoint. All numeric fields arrive as
// strings and are parsed at the adapter boundary.

type universeItem struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	OnlyIsolated bool   `json:"onlyIsolated"`
}

type metaResponse struct {
	Universe []universeItem `json:"universe"`
}

type assetContext struct {
	DayNtlVlm    string `json:"dayNtlVlm"`
	Funding      string `json:"funding"`
	MarkPx       string `json:"markPx"`
	MidPx        string `json:"midPx"`
	OpenInterest string `json:"openInterest"`
	OraclePx     string `json:"oraclePx"`
	PrevDayPx    string `json:"prevDayPx"`
}

type bookLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type l2Book struct {
	Coin   string         `json:"coin"`
	Time   int64          `json:"time"`
	Levels [2][]bookLevel `json:"levels"` // [0] bids, [1] asks
}

type publicTrade struct {
	Coin string `json:"coin"`
	Side string `json:"side"` // "B" buy, "A" sell
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"`
}

type positionLeverage struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

type clearinghousePosition struct {
	Coin          string           `json:"coin"`
	EntryPx       string           `json:"entryPx"`
	Leverage      positionLeverage `json:"leverage"`
	LiquidationPx string           `json:"liquidationPx"`
	MarginUsed    string           `json:"marginUsed"`
	MaxLeverage   int              `json:"maxLeverage"`
	Szi           string           `json:"szi"`
	UnrealizedPnl string           `json:"unrealizedPnl"`
}

type assetPosition struct {
	Position clearinghousePosition `json:"position"`
	Type     string                `json:"type"`
}

type marginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalMarginUsed string `json:"totalMarginUsed"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUsd     string `json:"totalRawUsd"`
}

type clearinghouseState struct {
	AssetPositions []assetPosition `json:"assetPositions"`
	MarginSummary  marginSummary   `json:"marginSummary"`
	Withdrawable   string          `json:"withdrawable"`
	Time           int64           `json:"time"`
}

// Exchange action payloads. Field order matters: the action is
// msgpack-encoded in struct order and hashed before signing.

type orderTypeLimit struct {
	Tif string `msgpack:"tif" json:"tif"`
}

type orderType struct {
	Limit *orderTypeLimit `msgpack:"limit,omitempty" json:"limit,omitempty"`
}

type wireOrder struct {
	Asset      int       `msgpack:"a" json:"a"`
	IsBuy      bool      `msgpack:"b" json:"b"`
	Price      string    `msgpack:"p" json:"p"`
	Size       string    `msgpack:"s" json:"s"`
	ReduceOnly bool      `msgpack:"r" json:"r"`
	Type       orderType `msgpack:"t" json:"t"`
}

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []wireOrder `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type leverageAction struct {
	Type     string `msgpack:"type" json:"type"`
	Asset    int    `msgpack:"asset" json:"asset"`
	IsCross  bool   `msgpack:"isCross" json:"isCross"`
	Leverage int    `msgpack:"leverage" json:"leverage"`
}

type signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

type exchangeRequest struct {
	Action    any        `json:"action"`
	Nonce     int64      `json:"nonce"`
	Signature *signature `json:"signature"`
}

type exchangeStatus struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		Oid     int64  `json:"oid"`
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}

type exchangeResponse struct {
	Status   string `json:"status"`
	Response struct {
		Type string `json:"type"`
		Data struct {
			Statuses []exchangeStatus `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}
