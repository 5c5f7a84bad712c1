package parser

import (
	"github.com/microcosm-cc/bluemonday"
)

var ticketHTMLPolicy = newTicketHTMLPolicy()

func newTicketHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// inline images reference their attachment through cid: urls
	p.AllowURLSchemes("http", "https", "mailto", "cid")
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// SanitizeHTML cleans message html before it becomes a ticket description or comment.
func SanitizeHTML(html string) string {
	if html == "" {
		return ""
	}
	return ticketHTMLPolicy.Sanitize(html)
}
