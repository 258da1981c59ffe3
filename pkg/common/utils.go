package common

import (
	"fmt"
	"math/rand"
	"time"
)

func GenerateTrxNo() string {
	const characters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	result := make([]byte, 7)
	for i := range result {
		result[i] = characters[r.Intn(len(characters))]
	}
	return string(result)
}

// PropertyReference builds the caller-visible PROP-{propertyId}-{sequence} key.
func PropertyReference(propertyID string) string {
	return fmt.Sprintf("PROP-%s-%s", propertyID, GenerateTrxNo())
}
