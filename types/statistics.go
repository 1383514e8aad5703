package types

// Statistics summarizes orders for the admin dashboard.
type Statistics struct {
	TotalOrders      int          `json:"totalOrders"`
	PendingOrders    int          `json:"pendingOrders"`
	ProcessingOrders int          `json:"processingOrders"`
	DeliveredOrders  int          `json:"deliveredOrders"`
	TotalRevenue     float64      `json:"totalRevenue"`
	DailyOrders      []DailyOrder `json:"dailyOrders"`
}

// DailyOrder aggregates the orders placed on one calendar day (UTC).
type DailyOrder struct {
	Date    string  `json:"date"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}
