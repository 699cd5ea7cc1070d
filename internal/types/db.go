package types

// TableName represents a database table name
type TableName string

const (
	TableNameActivityLogs      TableName = "activity_logs"
	TableNameBusinesses        TableName = "businesses"
	TableNameSubscriptionPlans TableName = "subscription_plans"
)
