package lifecycle

import (
	"context"

	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/filing"
)

// filedStates count as "presented" for deadline alerts.
var filedStates = []filing.LocalState{
	filing.StateSubmitted,
	filing.StateLoaded,
	filing.StateRectificationPending,
}

// Alerts lists the periods still due as of the service clock.
func (s *Service) Alerts(ctx context.Context, cal calendar.HolidayCalendar) ([]calendar.Alert, error) {
	if cal == nil {
		cal = calendar.NewNationalCalendar()
	}
	subs, err := s.Store.ListSubmissions(ctx, filing.SubmissionFilter{States: filedStates})
	if err != nil {
		return nil, err
	}

	in := calendar.AlertInput{
		Today:       calendar.DateOf(s.Clock()),
		Calendar:    cal,
		FiledWeeks:  map[string]bool{},
		FiledMonths: map[string]bool{},
	}
	for _, sub := range subs {
		if sub.DeliveryType == filing.Weekly {
			in.FiledWeeks[sub.Period] = true
		} else {
			in.FiledMonths[sub.Period] = true
		}
	}
	return calendar.Alerts(in), nil
}
