package models

// ProductCheckoutRequest is the body of POST /api/v1/checkout/products.
type ProductCheckoutRequest struct {
	ProductID string `json:"productId"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Quantity  int64  `json:"quantity,omitempty"` // defaults to 1
}

// SubscriptionCheckoutRequest is the body of POST /api/v1/checkout/subscription.
type SubscriptionCheckoutRequest struct {
	PlanID string `json:"planId"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// SelectRoleRequest is the body of PUT /api/v1/users/me/role.
type SelectRoleRequest struct {
	Role string `json:"role" binding:"required"`
}
