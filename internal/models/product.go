package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProductRecord holds the attributes read from one product page. It is built
// once per visited page and not modified afterwards.
type ProductRecord struct {
	SourceURL string    `json:"url"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Brand     string    `json:"brand"`
	SKU       string    `json:"sku"`
	ImageURL  string    `json:"image_url"`
	Matched   bool      `json:"match"`
	ScrapedAt time.Time `json:"-"`
}

type OutcomeKind int

const (
	OutcomeError OutcomeKind = iota
	OutcomeMatched
	OutcomeNoResults
	OutcomeNoMatch
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeMatched:
		return "matched"
	case OutcomeNoResults:
		return "no_results"
	case OutcomeNoMatch:
		return "no_match"
	default:
		return "error"
	}
}

// Outcome is the final result for one requested identifier. Record is set
// only for OutcomeMatched; Message carries the not-found text or the error.
type Outcome struct {
	Identifier string
	Kind       OutcomeKind
	Record     *ProductRecord
	Message    string
}

func Matched(identifier string, record *ProductRecord) Outcome {
	return Outcome{Identifier: identifier, Kind: OutcomeMatched, Record: record}
}

func NoResults(identifier, message string) Outcome {
	return Outcome{Identifier: identifier, Kind: OutcomeNoResults, Message: message}
}

func NoMatch(identifier, message string) Outcome {
	return Outcome{Identifier: identifier, Kind: OutcomeNoMatch, Message: message}
}

func Failed(identifier string, err error) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Identifier: identifier, Kind: OutcomeError, Message: msg}
}

// Found reports whether the outcome carries a matched product.
func (o Outcome) Found() bool {
	return o.Kind == OutcomeMatched && o.Record != nil
}

type matchedJSON struct {
	Found    bool   `json:"found"`
	Match    bool   `json:"match"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Brand    string `json:"brand"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
}

type missJSON struct {
	SKU     string `json:"sku"`
	Found   bool   `json:"found"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MarshalJSON renders the wire shape callers of the lookup service expect.
// For a match, sku is the value read from the page; otherwise it echoes the
// requested identifier.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutcomeMatched:
		if o.Record == nil {
			return nil, fmt.Errorf("matched outcome for %q has no record", o.Identifier)
		}
		r := o.Record
		return json.Marshal(matchedJSON{
			Found:    true,
			Match:    r.Matched,
			SKU:      r.SKU,
			Name:     r.Name,
			Price:    r.Price,
			Brand:    r.Brand,
			URL:      r.SourceURL,
			ImageURL: r.ImageURL,
		})
	case OutcomeNoResults, OutcomeNoMatch:
		return json.Marshal(missJSON{SKU: o.Identifier, Message: o.Message})
	default:
		return json.Marshal(missJSON{SKU: o.Identifier, Error: o.Message})
	}
}

// Summary counts outcomes by kind.
type Summary struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	NoResults int `json:"no_results"`
	NoMatch   int `json:"no_match"`
	Errors    int `json:"errors"`
}

func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeMatched:
			s.Matched++
		case OutcomeNoResults:
			s.NoResults++
		case OutcomeNoMatch:
			s.NoMatch++
		default:
			s.Errors++
		}
	}
	return s
}
