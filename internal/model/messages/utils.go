package messages

import (
	"fmt"
	"strings"
	"time"

	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/model/rates"
)

const (
	commandParts    = 2
	updatedAtLayout = "02.01.2006 15:04 MST"
	ratePrecision   = 4
	amountPrecision = 2
)

func location() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	split := strings.SplitN(text, " ", commandParts)

	if len(split) == commandParts {
		return split[0], strings.TrimSpace(split[1])
	}
	if strings.HasPrefix(text, "/") {
		return text, ""
	}
	return "", text
}

func formatRate(r currency.Rate) string {
	if r.Source == "" {
		return noRateMessage
	}

	lines := []string{fmt.Sprintf("1 %s = %.*f %s", r.Source, ratePrecision, r.Value, r.Target)}
	var details []string
	if !r.AsOfDate.IsZero() {
		details = append(details, "as of "+r.AsOfDate.Format(currency.DateLayout))
	}
	if !r.FetchedAt.IsZero() {
		details = append(details, "updated "+r.FetchedAt.In(location()).Format(updatedAtLayout))
	}
	if r.FromCache {
		details = append(details, "cached")
	}
	if len(details) > 0 {
		lines = append(lines, strings.Join(details, ", "))
	}
	return strings.Join(lines, "\n")
}

func formatConversion(r currency.Rate, amount float64) string {
	return fmt.Sprintf("%.*f %s = %.*f %s",
		amountPrecision, amount, r.Source,
		amountPrecision, r.Convert(amount), r.Target)
}

// outcomeNotice maps a refresh outcome to the notice shown to the user.
// The three outcomes never share a text.
func outcomeNotice(o rates.RefreshOutcome) string {
	switch o.Kind {
	case rates.SkippedFresh:
		return upToDateMessage
	case rates.Updated:
		return updatedMessage
	case rates.Failed:
		return fmt.Sprintf(refreshFailedTemplate, o.Err)
	default:
		return ""
	}
}
