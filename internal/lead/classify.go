package lead

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ufiyan/leadrevive/internal/airtable"
)

// StaleAfterDays is the contact-age threshold: a lead becomes stale when its
// last contact is strictly more than this many whole days before the
// reference date.
const StaleAfterDays = 7

const (
	layoutSlash = "02/01/2006" // day/month/year
	layoutISO   = "2006-01-02"
)

// Classify maps raw records to normalized leads and keeps the stale ones.
//
// A lead is stale when it has no generated message yet AND one of:
//   - it was never contacted (empty Last Contacted),
//   - its last contact is more than StaleAfterDays whole days before ref,
//   - its Last Contacted value cannot be parsed (worst case wins; the value
//     is logged, never silently dropped).
//
// Classification depends only on the records and ref; callers inject the
// reference time so runs are reproducible in tests.
func Classify(records []airtable.Record, ref time.Time, log *slog.Logger) []Lead {
	if log == nil {
		log = slog.Default()
	}

	var stale []Lead
	for _, rec := range records {
		ld := FromRecord(rec)

		// Idempotence guard: an existing generated message excludes the lead
		// unconditionally, regardless of contact age.
		if ld.GeneratedMessage != "" {
			continue
		}

		if ld.LastContactedRaw == "" {
			stale = append(stale, ld)
			continue
		}

		contacted, err := ParseContactDate(ld.LastContactedRaw)
		if err != nil {
			log.Warn("unparsable last-contacted date, assuming stale",
				"lead_id", ld.ID,
				"value", ld.LastContactedRaw)
			stale = append(stale, ld)
			continue
		}

		if wholeDaysBetween(contacted, ref) > StaleAfterDays {
			stale = append(stale, ld)
		}
	}
	return stale
}

// ParseContactDate parses a Last Contacted value. Values containing a slash
// are day/month/year; everything else is tried as ISO year-month-day.
func ParseContactDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "/") {
		return time.Parse(layoutSlash, raw)
	}
	return time.Parse(layoutISO, raw)
}

// wholeDaysBetween returns ref - contacted in whole days, comparing calendar
// dates rather than instants so the reference time-of-day cannot shift a
// lead across the threshold. Future contact dates yield negative values.
func wholeDaysBetween(contacted, ref time.Time) int {
	refDate := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	contactedDate := time.Date(contacted.Year(), contacted.Month(), contacted.Day(), 0, 0, 0, 0, time.UTC)
	return int(refDate.Sub(contactedDate).Hours() / 24)
}
