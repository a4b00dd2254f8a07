package report

// Summary is the admin dashboard view of bookings in a date range.
type Summary struct {
	From       string           `json:"from"`
	To         string           `json:"to"`
	Totals     Totals           `json:"totals"`
	Daily      []DailyStats     `json:"daily"`
	Therapists []TherapistStats `json:"therapists"`
}

type Totals struct {
	Bookings       int     `json:"bookings"`
	Completed      int     `json:"completed"`
	Cancelled      int     `json:"cancelled"`
	Revenue        float64 `json:"revenue"`
	TravelFees     float64 `json:"travelFees"`
	CompletionRate string  `json:"completionRate"`
}

type DailyStats struct {
	Date      string  `json:"date"`
	Bookings  int     `json:"bookings"`
	Completed int     `json:"completed"`
	Cancelled int     `json:"cancelled"`
	Revenue   float64 `json:"revenue"`
}

type TherapistStats struct {
	TherapistID   string  `json:"therapistId"`
	TherapistName string  `json:"therapistName"`
	Bookings      int     `json:"bookings"`
	Completed     int     `json:"completed"`
	Revenue       float64 `json:"revenue"`
	AverageRating float64 `json:"averageRating"`
	Reviews       int     `json:"reviews"`
}
