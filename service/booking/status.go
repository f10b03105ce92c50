package booking

import (
	"fmt"

	"github.com/OAddae2/Playpark-server/cmd/models"
)

// Legal booking status transitions. Anything not listed is rejected;
// terminal states have no outgoing edges.
var transitions = map[string][]string{
	models.BookingPendingPayment: {models.BookingPaid, models.BookingRejected, models.BookingCanceled, models.BookingFailed},
	models.BookingPaid:           {models.BookingAccepted, models.BookingCanceled},
	models.BookingAccepted:       {models.BookingCompleted, models.BookingCanceled},
	models.BookingCompleted:      {},
	models.BookingCanceled:       {},
	models.BookingRejected:       {},
	models.BookingFailed:         {},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

// Transition validates and returns the new status, or an error naming the
// rejected edge.
func Transition(from, to string) (string, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("cannot transition booking from %s to %s", from, to)
	}
	return to, nil
}
