package enums

var statusLabels = map[Status]string{
	StatusApplied:   "Beworben",
	StatusScreening: "Screening",
	StatusInterview: "Interview",
	StatusOffer:     "Angebot",
	StatusRejected:  "Absage",
	StatusAccepted:  "Angenommen",
}

// StatusLabel returns the display label of the status, the name for unknown values
func StatusLabel(s Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return s.String()
}
