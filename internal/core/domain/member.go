package domain

import "time"

type Member struct {
	ID         int64
	FullName   string
	Email      string
	Phone      string
	Address    string
	Department string
	Semester   string
	CreatedAt  time.Time
}
