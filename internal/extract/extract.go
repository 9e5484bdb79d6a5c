// Package extract decodes Messenger messages out of a page snapshot.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ibeckermayer/msgdump/internal/config"
	"github.com/ibeckermayer/msgdump/internal/types"
)

// Decoder turns page HTML into records using the configured selectors
type Decoder struct {
	sel    config.Selectors
	policy *bluemonday.Policy
}

// New creates a decoder. Message bodies are sanitized with the UGC policy
// because they are written verbatim into the HTML log.
func New(sel config.Selectors) *Decoder {
	return &Decoder{
		sel:    sel,
		policy: bluemonday.UGCPolicy(),
	}
}

// Decode returns one record per mounted message container, in DOM order.
// Only what the page currently holds is seen; nothing guarantees that is
// the whole thread or that it is chronological.
func (d *Decoder) Decode(html string) ([]types.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	var records []types.Record
	doc.Find(d.sel.MessageContainer).Each(func(_ int, msg *goquery.Selection) {
		r := types.Record{
			Sender:    d.sender(msg),
			Timestamp: d.timestamp(msg),
			Content:   d.content(msg),
		}
		if r == (types.Record{}) {
			return
		}
		records = append(records, r)
	})

	return records, nil
}

func (d *Decoder) sender(msg *goquery.Selection) string {
	if d.sel.MessageSender == "" {
		return ""
	}
	return d.policy.Sanitize(strings.TrimSpace(msg.Find(d.sel.MessageSender).First().Text()))
}

func (d *Decoder) timestamp(msg *goquery.Selection) string {
	if d.sel.MessageTimestamp == "" {
		return ""
	}
	el := msg.Find(d.sel.MessageTimestamp).First()
	if d.sel.TimestampAttr != "" {
		if v, ok := el.Attr(d.sel.TimestampAttr); ok && v != "" {
			return d.policy.Sanitize(v)
		}
	}
	return d.policy.Sanitize(strings.TrimSpace(el.Text()))
}

func (d *Decoder) content(msg *goquery.Selection) string {
	if d.sel.MessageContent == "" {
		return ""
	}
	inner, err := msg.Find(d.sel.MessageContent).First().Html()
	if err != nil {
		return ""
	}
	return d.policy.Sanitize(strings.TrimSpace(inner))
}
