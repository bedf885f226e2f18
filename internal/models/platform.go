package models

// User is an account on the host platform.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// OrderItem is a single order line.
type OrderItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"qty"`
	Total     float64 `json:"total"`
	ProductID int64   `json:"product_id"`
}

// Order is a completed checkout on the host platform.
type Order struct {
	ID               int64       `json:"id"`
	Status           string      `json:"status"`
	Total            float64     `json:"total"`
	Currency         string      `json:"currency"`
	BillingEmail     string      `json:"billing_email"`
	BillingFirstName string      `json:"billing_first_name"`
	BillingLastName  string      `json:"billing_last_name"`
	BillingPhone     string      `json:"billing_phone"`
	BillingCountry   string      `json:"billing_country"`
	BillingCity      string      `json:"billing_city"`
	CustomerID       int64       `json:"customer_id"`
	RegistrationUser int64       `json:"registration_user"`
	Items            []OrderItem `json:"items"`
}

// ApprovalStatus is the review decision recorded for a player.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDeclined ApprovalStatus = "declined"
)
