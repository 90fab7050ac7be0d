// Package config provides configuration management for connpool.
//
// # Key Features
//
// - Config: one structure describing a pool, its connection parameters and
// the logging, metrics and tracing around it
// - Environment variable substitution with ${VAR_NAME} syntax
// - Defaults via NewDefault and validation via Validate
//
// # Usage
//
// ## Loading a pool configuration
//
//	cfg, err := config.LoadFile("pool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ## YAML layout
//
//	pool:
//	  name: orders
//	  capacity: 8
//	connection:
//	  driver: mysql
//	  host: db.internal
//	  port: 3306
//	  user: app
//	  password: ${MYSQL_PASSWORD}
//	  database: orders
//	  connect_timeout: 5s
//	  params:
//	    charset: utf8mb4
//	logging:
//	  level: info
//	metrics:
//	  enabled: true
//	  listen_addr: ":9090"
//
// The connection section is opaque to the pool itself; it is interpreted by
// the driver named in connection.driver.
package config
