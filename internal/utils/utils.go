package utils

import (
	"time"

	"gopkg.in/go-playground/validator.v9"
)

//Validate -_-
var Validate *validator.Validate

func init() {
	Validate = validator.New()
}

// GetTimeNow Gets current time
func GetTimeNow() *time.Time {
	t := time.Now()

	return &t
}
