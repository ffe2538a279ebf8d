package db

// Seeder environment.
const (
	EnvClusterArn = "CLUSTER_ARN"
	EnvSecretArn  = "SECRET_ARN"
	EnvDatabase   = "DATABASE"
	EnvTable      = "TABLE"
)
