package tsetmc

import (
	"fmt"
	"html"
)

// HomepageURL returns the provider page of the instrument behind shortCode.
func HomepageURL(shortCode string) string {
	return fmt.Sprintf("http://www.tsetmc.com/instInfo/%s", shortCode)
}

// HomepageLink renders ticker as an HTML link to its provider page.
func HomepageLink(ticker, shortCode string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, HomepageURL(shortCode), html.EscapeString(ticker))
}
