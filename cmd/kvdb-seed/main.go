package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kvdb/kvdb/pkg/client"
)

func main() {
	server := flag.String("server", "http://localhost:3005", "kvdb server URL")
	count := flag.Int("count", 5, "number of generated keys to create")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := client.NewClient(*server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}

	if err := c.HealthCheck(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server is not reachable at %s: %v\n", *server, err)
		os.Exit(1)
	}

	named := []struct {
		name     string
		value    string
		readOnly bool
	}{
		{"greeting", "hello, world", false},
		{"config.theme", "dark", false},
		{"release-notes", "first public build", true},
	}

	fmt.Println("Creating keys...")
	for _, k := range named {
		opts := []client.CreateOption{client.WithName(k.name)}
		if k.readOnly {
			opts = append(opts, client.WithReadOnly())
		}

		if _, err := c.Create(ctx, k.value, opts...); err != nil {
			if apiErr, ok := err.(*client.Error); ok && apiErr.IsConflict() {
				fmt.Printf("Key already exists: %s\n", k.name)
				continue
			}
			fmt.Fprintf(os.Stderr, "Failed to create key %s: %v\n", k.name, err)
			continue
		}
		fmt.Printf("Created key: %s (read-only: %v)\n", k.name, k.readOnly)
	}

	for i := 1; i <= *count; i++ {
		key, err := c.Create(ctx, fmt.Sprintf("generated value %d", i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create generated key %d: %v\n", i, err)
			continue
		}
		fmt.Printf("  Created generated key %d: %s\n", i, key.Name)
	}

	fmt.Println("\nDone!")
}
