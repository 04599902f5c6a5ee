// Command generate-schema writes the JSON schema of the lustrebulk
// configuration file, for editor completion and validation.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/marmos91/lustrebulk/pkg/config"
)

func main() {
	output := flag.String("o", "config.schema.json", "output file (- for stdout)")
	flag.Parse()

	data, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal schema: %v", err)
	}
	data = append(data, '\n')

	if *output == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			log.Fatalf("Failed to write schema: %v", err)
		}
		return
	}

	if err := os.WriteFile(*output, data, 0644); err != nil {
		log.Fatalf("Failed to write schema file: %v", err)
	}
	log.Printf("Configuration schema (version %s) written to %s", config.SchemaVersion, *output)
}
