package currency

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const DateLayout = "2006-01-02"

// Snapshot is the rate table of one source currency: Rates[X] is the amount of
// X for one unit of SourceCode. It is replaced wholesale, never patched.
// FetchedAt keeps second precision and AsOfDate day precision, like the wire form.
type Snapshot struct {
	SourceCode string
	AsOfDate   time.Time
	FetchedAt  time.Time
	Rates      map[string]float64
}

type snapshotJSON struct {
	Base            string             `json:"base"`
	Date            string             `json:"date"`
	TimeLastUpdated int64              `json:"time_last_updated"`
	Rates           map[string]float64 `json:"rates"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	raw := snapshotJSON{
		Base:  s.SourceCode,
		Rates: s.Rates,
	}
	if !s.AsOfDate.IsZero() {
		raw.Date = s.AsOfDate.Format(DateLayout)
	}
	if !s.FetchedAt.IsZero() {
		raw.TimeLastUpdated = s.FetchedAt.Unix()
	}
	return json.Marshal(raw)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var res Snapshot
	if raw.Date != "" {
		date, err := time.Parse(DateLayout, raw.Date)
		if err != nil {
			return errors.Wrap(err, "parse date")
		}
		res.AsOfDate = date
	}
	if raw.TimeLastUpdated != 0 {
		res.FetchedAt = time.Unix(raw.TimeLastUpdated, 0).UTC()
	}
	for code, rate := range raw.Rates {
		if rate <= 0 {
			return errors.Errorf("non-positive rate %v for %s", rate, code)
		}
	}
	res.SourceCode = raw.Base
	res.Rates = raw.Rates
	*s = res
	return nil
}

// Rate is a snapshot projected through a target currency.
type Rate struct {
	Source    string
	Target    string
	Value     float64
	AsOfDate  time.Time
	FetchedAt time.Time
	FromCache bool
}

// noConversion is reported when the table has no entry for the target.
const noConversion = 1.0

// Project derives the rate for target. An absent target yields 1.0.
func (s Snapshot) Project(target string) Rate {
	value, ok := s.Rates[target]
	if !ok {
		value = noConversion
	}
	return Rate{
		Source:    s.SourceCode,
		Target:    target,
		Value:     value,
		AsOfDate:  s.AsOfDate,
		FetchedAt: s.FetchedAt,
	}
}

// Convert returns amount of Source expressed in Target.
func (r Rate) Convert(amount float64) float64 {
	return amount * r.Value
}
