// Package sharing builds protocol responses: listings, table metadata, and
// NDJSON query streams in both response dialects.
package sharing

import (
	"strings"

	"deltashare/internal/domain"
)

// CapabilitiesHeader is the request and response header carrying protocol
// capability pairs.
const CapabilitiesHeader = "Delta-Sharing-Capabilities"

// EndStreamActionHeader is the single-purpose header requesting an
// end-of-stream marker. It overrides the combined capability header.
const EndStreamActionHeader = "Include-End-Stream-Action"

// AdvertisedCapabilities is stamped on every protocol response.
const AdvertisedCapabilities = "responseformat=parquet,delta"

// Capabilities are the client's negotiated request options.
type Capabilities struct {
	// ResponseFormat is the first requested format token, empty when the
	// client stated no preference.
	ResponseFormat string
	// Formats holds every requested format token, in request order.
	Formats                []string
	IncludeEndStreamAction bool
}

// ParseCapabilities folds the capability header, the standalone
// end-stream-action header, and the response format query parameter into
// one Capabilities value. Keys and values are case-insensitive; the first
// responseformat pair wins and is not overridden by a later pair; the
// query parameter overrides everything.
func ParseCapabilities(capHeader, endStreamHeader, queryFormat string) Capabilities {
	var c Capabilities
	formatSet := false

	for _, pair := range strings.Split(capHeader, ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.ToLower(strings.TrimSpace(value))
		switch key {
		case "responseformat":
			if tokens := splitFormats(value); !formatSet && len(tokens) > 0 {
				c.ResponseFormat = tokens[0]
				c.Formats = tokens
				formatSet = true
			}
		case "includeendstreamaction":
			c.IncludeEndStreamAction = value == "true"
		}
	}

	if endStreamHeader != "" {
		c.IncludeEndStreamAction = strings.EqualFold(strings.TrimSpace(endStreamHeader), "true")
	}
	if tokens := splitFormats(strings.ToLower(queryFormat)); len(tokens) > 0 {
		c.ResponseFormat = tokens[0]
		c.Formats = tokens
	}
	return c
}

func splitFormats(value string) []string {
	var tokens []string
	for _, tok := range strings.Split(value, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// AllowsDelta reports whether the client accepts the delta dialect: either
// no preference was stated or "delta" appears among the requested formats.
func (c Capabilities) AllowsDelta() bool {
	if len(c.Formats) == 0 {
		return true
	}
	for _, tok := range c.Formats {
		if tok == domain.FormatDelta {
			return true
		}
	}
	return false
}

// UseLogWrapping decides the response dialect. Delta tables always use the
// delta dialect; other tables use it when the client accepts it.
func UseLogWrapping(tableFormat string, c Capabilities) bool {
	return tableFormat == domain.FormatDelta || c.AllowsDelta()
}
