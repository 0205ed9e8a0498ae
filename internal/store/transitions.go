package store

import "github.com/rebekz/simrs/internal/models"

var transitionMap = map[string][]string{
	"call_next": {models.StatusWaiting},
	"serve":     {models.StatusCalled},
	"skip":      {models.StatusCalled},
	"cancel":    {models.StatusWaiting},
	"recall":    {models.StatusCalled},
	"transfer":  {models.StatusWaiting, models.StatusCalled},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
