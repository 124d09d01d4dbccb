package realtime

import "github.com/google/uuid"

// GenId generates a unique peer identifier
func GenId() string {
	return uuid.NewString()
}
