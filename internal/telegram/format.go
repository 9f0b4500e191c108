package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rewired-gh/skinscout/internal/models"
	"github.com/rewired-gh/skinscout/internal/scan"
)

// FormatAlert renders an alert as a Telegram HTML message.
func FormatAlert(a scan.Alert) string {
	base := a.Item.Base()

	var b strings.Builder
	fmt.Fprintf(&b, "Page: %d\nURL:\n%s\n\n", base.Page, html.EscapeString(a.URL))
	fmt.Fprintf(&b, "Item: %s\n", html.EscapeString(base.Name))

	switch it := a.Item.(type) {
	case models.PatternItem:
		fmt.Fprintf(&b, "Average Price: <b>%s$</b>\nPrice: <b>%s$</b>\n\n",
			it.AveragePrice.StringFixed(2), it.Price.StringFixed(2))
		fmt.Fprintf(&b, "Pattern overprice: %s$\nPattern overprice %%: %s%%\n\n",
			it.Overprice().StringFixed(2), it.OverpricePercent().StringFixed(2))
		fmt.Fprintf(&b, "Float: <b>%g</b>\nPattern: <b>%d</b>", it.PatternValue, it.PatternSeed)

	case models.DecorationItem:
		fmt.Fprintf(&b, "Average Price: <b>%s$</b>\nPrice: <b>%s$</b>\n\n",
			it.AveragePrice.StringFixed(2), it.Price.StringFixed(2))
		fmt.Fprintf(&b, "Decoration overprice: <b>%s$</b>\nDecoration overprice %%: <b>%s%%</b>\nDecorations total price: <b>%s$</b>\n\n",
			it.Overprice().StringFixed(2), it.OverpricePercent().StringFixed(2), it.TotalValue.StringFixed(2))
		fmt.Fprintf(&b, "Decorations %d:", len(it.Decorations))
		for _, d := range it.Decorations {
			fmt.Fprintf(&b, "\n%s, Price: %s$", html.EscapeString(d.Name), d.Price.StringFixed(2))
		}

	default:
		fmt.Fprintf(&b, "Price: <b>%s$</b>", base.Price.StringFixed(2))
	}
	return b.String()
}

func formatStatus(st scan.Status) string {
	if st.RunID == "" {
		return "No scan has run yet"
	}
	state := "finished"
	if st.Running {
		state = "running"
	}
	return fmt.Sprintf("Scan <b>%s</b> (%s) %s\nStarted: %s\nPasses: %d\nAlerts: %d",
		st.Mode, st.RunID, state, st.StartedAt.Format(time.DateTime), st.Passes, st.Alerts)
}
