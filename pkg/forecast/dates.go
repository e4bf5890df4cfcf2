package forecast

import "time"

const dateLayout = "2006-01-02"

// AddBusinessDays returns the date n weekdays after t. Exchange holidays are
// not modelled.
func AddBusinessDays(t time.Time, n int) time.Time {
	d := t
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return d
}

// horizonDate returns the target date of h counted from the anchor date.
func horizonDate(anchor time.Time, h Horizon) string {
	return AddBusinessDays(anchor, businessDays[h]).Format(dateLayout)
}
