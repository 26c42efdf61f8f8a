package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/verist/newscast/pkg/config"
)

// generates the JSON schema embedded into pkg/config for startup verification
func main() {
	out := "schema.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	schema, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("generate schema: %v", err)
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("marshal schema: %v", err)
	}

	if err := os.WriteFile(out, data, 0o600); err != nil {
		log.Fatalf("write %s: %v", out, err)
	}

	fmt.Printf("schema written to %s\n", out)
}
