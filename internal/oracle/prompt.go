package oracle

import (
	"fmt"
	"strings"

	"quorum/internal/venue"
)

const systemPrompt = `You are a cryptocurrency perpetual-futures analyst.
Reply with a single JSON object and nothing else:
{"direction": "strong_buy|buy|hold|sell|strong_sell", "confidence": 0-100, "rationale": "one short paragraph"}`

func buildUserPrompt(inst venue.Instrument, snap Snapshot) string {
	var b strings.Builder
	md := snap.Market
	fmt.Fprintf(&b, "Instrument: %s\n", inst.Symbol)
	fmt.Fprintf(&b, "Price: %.6g  24h change: %+.2f%%  24h volume: %.6g\n", md.Price, md.Change24h*100, md.Volume)
	if md.FundingRate != 0 {
		fmt.Fprintf(&b, "Funding rate: %+.5f%%\n", md.FundingRate*100)
	}

	if bid, ask := snap.OrderBook.BestBid(), snap.OrderBook.BestAsk(); bid > 0 && ask > 0 {
		fmt.Fprintf(&b, "Best bid/ask: %.6g / %.6g (spread %.4f%%)\n", bid, ask, (ask-bid)/bid*100)
	}

	if n := len(snap.RecentTrades); n > 0 {
		buys := 0
		for _, tr := range snap.RecentTrades {
			if tr.IsBuy {
				buys++
			}
		}
		fmt.Fprintf(&b, "Recent trades: %d (%.0f%% buyer-initiated)\n", n, float64(buys)/float64(n)*100)
	}

	if h := strings.TrimSpace(snap.RecentHistory); h != "" {
		b.WriteString("\nRecent history:\n")
		b.WriteString(h)
		b.WriteString("\n")
	}

	if p := snap.Position; p != nil && p.Side != "" {
		fmt.Fprintf(&b, "\nOpen position: %s %.8g @ %.6g (%.1fx), unrealized %+.2f%%, held %dm\n",
			p.Side, p.Size, p.EntryPrice, p.Leverage, p.UnrealizedPnLPct, p.HoldingMinutes)
	} else {
		b.WriteString("\nOpen position: none\n")
	}

	b.WriteString("\nGive your trading direction for the next interval.")
	return b.String()
}
