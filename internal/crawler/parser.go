package crawler

import (
	"io"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// product links look like /p/123456789.html or /en/some-name-c0p123456789.html
var productLinkRe = regexp.MustCompile(`(?:/p/|-c\d+p|-l)(\d{6,})(?:\.html|[/?#]|$)`)

// ExtractProductIDs collects product identifiers from the anchors of a
// category page, in page order.
func ExtractProductIDs(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var ids []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := productLinkRe.FindStringSubmatch(href); len(m) > 1 {
			ids = append(ids, m[1])
		}
	})
	return Dedupe(ids), nil
}
