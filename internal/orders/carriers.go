package orders

import (
	"fmt"
	"net/url"
	"strings"
)

// carrierTemplates maps a normalized carrier name to its public tracking page.
var carrierTemplates = map[string]string{
	"indiapost":   "https://www.indiapost.gov.in/_layouts/15/dop.portal.tracking/trackconsignment.aspx?consignment=%s",
	"delhivery":   "https://www.delhivery.com/track/package/%s",
	"bluedart":    "https://www.bluedart.com/tracking?trackFor=0&trackNo=%s",
	"dtdc":        "https://www.dtdc.in/trace.asp?strCnno=%s",
	"ecomexpress": "https://ecomexpress.in/tracking/?awb_field=%s",
	"xpressbees":  "https://www.xpressbees.com/shipment/tracking?awbNo=%s",
	"shadowfax":   "https://tracker.shadowfax.in/#/track/%s",
}

const genericTrackingURL = "https://www.google.com/search?q=%s"

// CarrierTrackingURL renders the tracking link for a carrier. Unknown carriers
// fall back to a web search for the carrier and number.
func CarrierTrackingURL(carrierName, trackingNumber string) string {
	number := strings.TrimSpace(trackingNumber)
	if number == "" {
		return ""
	}
	if tmpl, ok := carrierTemplates[normalizeCarrier(carrierName)]; ok {
		return fmt.Sprintf(tmpl, url.QueryEscape(number))
	}
	query := strings.TrimSpace(strings.TrimSpace(carrierName) + " tracking " + number)
	return fmt.Sprintf(genericTrackingURL, url.QueryEscape(query))
}

func normalizeCarrier(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
