package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an order. Orders are created by the
// backend and only ever move between statuses in response to staff actions.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPreparing  Status = "preparing"
	StatusDelivering Status = "delivering"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// DefaultStatus is the filter the dashboard starts on.
const DefaultStatus = StatusPreparing

func Statuses() []Status {
	return []Status{
		StatusPending,
		StatusPreparing,
		StatusDelivering,
		StatusCompleted,
		StatusCancelled,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusDelivering, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// deliveryWindow is the promised preparation time shown next to each order.
const deliveryWindow = 50 * time.Minute

type OrderItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Qty      int     `json:"qtd"`
	Subtotal float64 `json:"subtotal"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	District   string `json:"district"`
	ZipCode    string `json:"zip_code"`
	City       string `json:"city"`
	State      string `json:"state"`
	Complement string `json:"complement,omitempty"`
}

type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Image     string `json:"image,omitempty"`
}

type Order struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Amount    float64     `json:"amount"`
	Payment   string      `json:"payment"`
	Items     []OrderItem `json:"items"`
	Customer  *Customer   `json:"customer,omitempty"`
	Address   *Address    `json:"address,omitempty"`
}

// EstimatedReady is the time promised to the customer.
func (o Order) EstimatedReady() time.Time {
	return o.CreatedAt.Add(deliveryWindow)
}

// StatusCounts maps each status to the number of orders currently in it.
type StatusCounts map[Status]int

type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	Image     string `json:"image,omitempty"`
}

type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
}

type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	CategoryID  string  `json:"category_id"`
	Image       string  `json:"image,omitempty"`
	Active      bool    `json:"active"`
}
