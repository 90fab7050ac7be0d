// Package errors provides examples of structured error handling in connpool.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/connpool/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	// Create a new error with type
	err := errors.New(errors.ErrorTypeConnection, "failed to connect to database")

	// Add context details
	err = err.WithDetail("host", "localhost").
		WithDetail("port", 3306)

	fmt.Println(err.Error())

	// Output:
	// connection: failed to connect to database
}

// ExampleWrap shows how a driver wraps a transport failure.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeQuery, "query failed").
		WithDetail("query", "SELECT 1")

	if errors.IsType(err, errors.ErrorTypeQuery) {
		fmt.Println("This is a query error")
	}

	if errors.Is(err, io.EOF) {
		fmt.Println("Original error was EOF")
	}

	// Output:
	// This is a query error
	// Original error was EOF
}

// ExampleIsRetryable shows which failures a caller may retry by acquiring again.
func ExampleIsRetryable() {
	connErr := errors.New(errors.ErrorTypeConnection, "connection refused")
	closedErr := errors.New(errors.ErrorTypeClosed, "pool is closed")

	fmt.Printf("connection refused retryable: %v\n", errors.IsRetryable(connErr))
	fmt.Printf("pool closed retryable: %v\n", errors.IsRetryable(closedErr))

	// Output:
	// connection refused retryable: true
	// pool closed retryable: false
}

// Example_errorChain shows how to chain multiple error contexts.
func Example_errorChain() {
	err := dial()
	if err != nil {
		err = errors.Wrap(err, errors.ErrorTypeConfig, "driver mysql")
		fmt.Println("Full error chain:", err)
	}

	// Output:
	// Full error chain: config: driver mysql: connection: connection timeout
}

func dial() error {
	return errors.New(errors.ErrorTypeConnection, "connection timeout").
		WithDetail("host", "db.example.com").
		WithDetail("port", 3306)
}

// ExampleIsType demonstrates checking error types.
func ExampleIsType() {
	connErr := errors.New(errors.ErrorTypeConnection, "connection failed")
	wrappedErr := errors.Wrap(connErr, errors.ErrorTypeConfig, "open failed")

	fmt.Printf("Is connection error: %v\n", errors.IsType(connErr, errors.ErrorTypeConnection))
	fmt.Printf("Wrapped error is config type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeConfig))
	fmt.Printf("Wrapped error contains connection type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeConnection))

	// Output:
	// Is connection error: true
	// Wrapped error is config type: true
	// Wrapped error contains connection type: false
}
