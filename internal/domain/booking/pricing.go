package booking

import "math"

// FeePolicy prices the therapist's travel to the customer.
type FeePolicy struct {
	FreeKm float64
	PerKm  float64
}

var DefaultFeePolicy = FeePolicy{FreeKm: 3, PerKm: 10}

// TravelFee charges PerKm for every started kilometre beyond FreeKm.
func (p FeePolicy) TravelFee(km float64) float64 {
	if math.IsNaN(km) || km <= p.FreeKm {
		return 0
	}
	return math.Ceil(km-p.FreeKm) * p.PerKm
}
