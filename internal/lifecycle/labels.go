package lifecycle

import "github.com/kiranshivaraju/clearops/pkg/models"

var labels = map[models.JobStatus]string{
	models.JobStatusPending:             "Draft",
	models.JobStatusCreated:             "Awaiting Quote",
	models.JobStatusQuoteSent:           "Quote Sent",
	models.JobStatusQuoteAccepted:       "Booking Confirmed",
	models.JobStatusQuoteRejected:       "Quote Declined",
	models.JobStatusCrewAssigned:        "Crew Assigned",
	models.JobStatusCrewDispatched:      "Crew On The Way",
	models.JobStatusCrewArrived:         "Arrived at Property",
	models.JobStatusBeforePhoto:         "Work Started",
	models.JobStatusClearanceInProgress: "Work Started",
	models.JobStatusAfterPhoto:          "Work Started",
	models.JobStatusWorkCompleted:       "Awaiting Final Payment",
	models.JobStatusCompleted:           "Completed",
	models.JobStatusCancelled:           "Cancelled",
}

// Label returns the customer-facing name of a status.
func Label(s models.JobStatus) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}
