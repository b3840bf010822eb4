package model

import "time"

// Placeholder stored when the client leaves an optional field blank.
const Unspecified = "No especificado"

type Reservation struct {
	ID        string    `json:"id,omitempty" db:"id"`
	Date      string    `json:"date" db:"date"`
	Time      string    `json:"time" db:"time"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Service   string    `json:"service" db:"service"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// BookingRequest is the client payload of a reservation attempt.
type BookingRequest struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Service string `json:"service,omitempty"`
}

// Confirmation is returned once a reservation has been recorded.
type Confirmation struct {
	Reservation Reservation
	EventLink   string
}
