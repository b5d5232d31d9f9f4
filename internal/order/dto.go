package order

// UpdateStatusDTO is the staff request to move an order along the kitchen
// lifecycle.
type UpdateStatusDTO struct {
	Status string `json:"status"`
}
