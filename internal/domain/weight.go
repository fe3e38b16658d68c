package domain

import "time"

// WeightEntry is a single weight measurement.
type WeightEntry struct {
	ID     string    `json:"id"`
	Weight float64   `json:"weight"`
	Date   time.Time `json:"date"`
}

// WeightRecord is a WeightEntry with the change against the previous measurement.
type WeightRecord struct {
	WeightEntry

	// Delta is zero for the oldest entry.
	Delta float64
}

// AddWeightRequest is the body of POST /users/weight.
type AddWeightRequest struct {
	Weight float64 `json:"weight"`
}
