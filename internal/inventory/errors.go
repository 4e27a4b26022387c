package inventory

import (
	"errors"
	"fmt"
)

var ErrProductNotFound = errors.New("product not found")

type InsufficientStockError struct {
	ProductID string
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available=%d required=%d",
		e.ProductID, e.Available, e.Required)
}
